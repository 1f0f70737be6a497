// Package command defines the Command Runner collaborator: the textual
// command interpreter §1 treats as external, and the two implementations
// this repository ships against it.
package command

import "context"

// Runner executes one command against the map loaded under mapKey. Side
// effects land only on that map; Run must not mutate any other map key.
type Runner interface {
	Run(ctx context.Context, mapKey, commandText string) error
}
