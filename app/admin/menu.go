package admin

// Texts and callback keys of the admin surface.
const (
	MsgAccessDenied  = "⛔ Accesso negato. Non sei un amministratore."
	MsgMenuTitle     = "🛠️ <b>Pannello Admin</b>"
	MsgExportCaption = "📤 Esportazione completa dei marker"
	MsgToggleFailed  = "❌ Impossibile salvare lo stato dei log"

	ExportFileName = "markers_export.csv"

	KeyStats  = "admin:stats"
	KeyExport = "admin:export"
	KeyToggle = "admin:logs"
)

// MenuText is the admin menu body with the current logging state.
func MenuText(ls *LogState) string {
	return MsgMenuTitle + "\n\n" + ls.Label()
}

// ToggleButtonText names the action the toggle button performs next.
func ToggleButtonText(ls *LogState) string {
	if ls.Enabled() {
		return "🔕 Disattiva log"
	}
	return "🔔 Attiva log"
}
