package bootstrap

import "context"

// Seeder prepares persistent state, such as creating an empty table.
type Seeder interface {
	Name() string
	Seed(ctx context.Context) error
}

// SeederFunc adapts a named function to the Seeder interface.
type SeederFunc struct {
	Label string
	Fn    func(ctx context.Context) error
}

// Name returns the seeder label for logs.
func (f SeederFunc) Name() string { return f.Label }

// Seed executes the underlying function.
func (f SeederFunc) Seed(ctx context.Context) error { return f.Fn(ctx) }

// Modules groups optional bootstrapping hooks.
type Modules struct {
	Seeders []Seeder
}
