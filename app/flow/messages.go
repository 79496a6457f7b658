package flow

import (
	"fmt"
	"strings"

	"github.com/m3rciful/markerbot/app/marker"
)

// User-facing texts. The bot speaks Italian only.
const (
	MsgStart = "👋 <b>Benvenuto!</b> Scegli un'azione:\n\n" +
		"➕ Aggiungi marker - /add\n" +
		"✏️ Rinomina marker - /rename\n" +
		"🗑️ Elimina marker - /delete\n" +
		"📍 Lista marker - /list\n" +
		"❌ Annulla operazione - /cancel\n" +
		"ℹ️ Help - /help"
	MsgUnknownCommand = "Comando non riconosciuto. Usa /help per la lista dei comandi."
	MsgIdleHint       = "Nessuna operazione in corso. Usa /help per la lista dei comandi."
	MsgGenericError   = "❌ Si è verificato un errore. Riprova."

	MsgInProgress   = "Hai già un'operazione in corso. Completa o annulla prima quella."
	MsgExpired      = "⌛ Sessione scaduta per inattività. Ricomincia con il comando dell'operazione."
	MsgCancelled    = "Operazione annullata"
	MsgNothingToEnd = "Nessuna operazione da annullare."

	MsgNoMarkers         = "Non hai ancora aggiunto marker."
	MsgNoMarkersToRename = "Non hai marker da rinominare."
	MsgNoMarkersToDelete = "Non hai marker da eliminare."
	MsgNoMarkersLeft     = "Non hai più marker salvati."
	MsgYourMarkers       = "I tuoi marker:\n\n"

	MsgMarkerAdded   = "Marker aggiunto con successo!"
	MsgMarkerDeleted = "Marker eliminato."
	MsgNameUpdated   = "Nome aggiornato!"

	MsgInvalidValue     = "Valore non valido. "
	MsgInvalidSelection = "Selezione non valida."
	MsgInvalidName      = "Nome non valido."
	MsgInvalidLink      = "Il link non è valido. Deve iniziare con http:// o https://"
	MsgDuplicateName    = "Hai già un marker con questo nome. Ripeti l'operazione"
	MsgPickNodeType     = "Seleziona un tipo valido dalla tastiera"
	MsgPickFrequency    = "Seleziona una frequenza valida dalla tastiera"

	MsgAddLat         = "Inserisci la latitudine oppure invia la posizione:"
	MsgAddLon         = "Inserisci la longitudine:"
	MsgSelectNodeType = "📡 Seleziona il tipo di nodo:"
	MsgSelectFreq     = "📶 Seleziona la frequenza di utilizzo:"
	MsgLinkAsk        = "Vuoi aggiungere un link?"
	MsgAddLink        = "Inserisci il link:"
	MsgRenameSelect   = "Quale marker vuoi rinominare?\n\n"
	MsgRenameNewName  = "Inserisci il nuovo nome:"
	MsgDeleteSelect   = "Quale marker vuoi eliminare?\n\n"

	MsgOperationFailed = "❌ Errore durante l'operazione"
	MsgSaveFailed      = "❌ Errore durante il salvataggio"
	MsgDeletionError   = "Errore durante l'eliminazione."

	// CancelText is the reply keyboard / typed word that cancels any flow.
	CancelText = "Annulla"
)

var (
	MsgAddName     = fmt.Sprintf("Inserisci il nome del marker (max %d caratteri):", marker.MaxNameLen)
	MsgEnterDesc   = fmt.Sprintf("✏️ Inserisci una descrizione (max %d caratteri):", marker.MaxDescLen)
	MsgNameTooLong = fmt.Sprintf("Il nome è troppo lungo. Massimo %d caratteri.", marker.MaxNameLen)
	MsgDescTooLong = fmt.Sprintf("La descrizione è troppo lunga. Massimo %d caratteri.", marker.MaxDescLen)
	MsgLinkTooLong = fmt.Sprintf("Il link è troppo lungo. Massimo %d caratteri.", marker.MaxLinkLen)
)

const (
	nodeTypePlaceholder = "Scegli il tipo..."
	linkPlaceholder     = "Scegli un'opzione..."
)

func quotaReached(limit int) string {
	return fmt.Sprintf("Hai già %d marker. Elimina uno per aggiungerne un altro.", limit)
}

func numberedMenu(head string, markers []marker.Marker) string {
	var b strings.Builder
	b.WriteString(head)
	for i, m := range markers {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s", i+1, m.Name)
	}
	return b.String()
}

// ListText renders the owner's markers the way /list shows them.
func ListText(markers []marker.Marker) string {
	if len(markers) == 0 {
		return MsgNoMarkers
	}
	var b strings.Builder
	b.WriteString(MsgYourMarkers)
	for _, m := range markers {
		b.WriteString("• ")
		b.WriteString(m.Name)
		if m.HasLink() {
			b.WriteString(" → ")
			b.WriteString(m.Link)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func handleOrAnon(handle string) string {
	if handle == "" {
		return marker.Anonymous
	}
	return handle
}

func addedLog(m marker.Marker) string {
	var b strings.Builder
	b.WriteString("📍 Nuovo marker\n")
	fmt.Fprintf(&b, "👤 Utente: %s (ID: %s)\n", m.User, m.ID)
	fmt.Fprintf(&b, "📛 Nome: %s\n", m.Name)
	fmt.Fprintf(&b, "🌐 Posizione: %g, %g\n", m.Lat, m.Lon)
	fmt.Fprintf(&b, "📡 Tipo: %s\n", m.NodeType)
	fmt.Fprintf(&b, "📶 Frequenza: %s\n", m.Frequency)
	if m.Desc != "" {
		fmt.Fprintf(&b, "📝 Descrizione: %s\n", m.Desc)
	}
	if m.HasLink() {
		fmt.Fprintf(&b, "🔗 Link: %s\n", m.Link)
	}
	return b.String()
}

func renamedLog(handle, owner, oldName, newName string) string {
	return fmt.Sprintf("✏️ Marker rinominato\n👤 Utente: %s (ID: %s)\n📛 Vecchio nome: %s\n🆕 Nuovo nome: %s\n",
		handleOrAnon(handle), owner, oldName, newName)
}

func deletedLog(handle, owner string, m marker.Marker) string {
	s := fmt.Sprintf("🗑️ Marker eliminato\n👤 Utente: %s (ID: %s)\n📍 Nome: %s\n", handleOrAnon(handle), owner, m.Name)
	if m.HasLink() {
		s += fmt.Sprintf("🔗 Link: %s\n", m.Link)
	}
	return s
}
