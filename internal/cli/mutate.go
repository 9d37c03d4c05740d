package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/herdsync/internal/engine"
	"github.com/roach88/herdsync/internal/record"
)

// target picks the record a mutation applies to.
type target struct {
	LocalID int64
}

func (t *target) register(cmd *cobra.Command) {
	cmd.Flags().Int64Var(&t.LocalID, "local-id", 0, "address a pending record by local id instead of animal number")
}

// resolve finds the visible item for the animal number in args, or the
// pending record --local-id names.
func (t *target) resolve(cmd *cobra.Command, a *app, args []string) (engine.Item, error) {
	ctx := cmd.Context()

	if t.LocalID != 0 {
		rec, ok := a.pending.Get(ctx, t.LocalID)
		if !ok {
			msg := fmt.Sprintf("no pending record with local id %d", t.LocalID)
			_ = a.out.Error(ErrCodeNotFound, msg, nil)
			return engine.Item{}, NewExitError(ExitFailure, msg)
		}
		return engine.Assemble([]record.Pending{rec}, nil)[0], nil
	}

	if len(args) != 1 {
		_ = a.out.Error(ErrCodeGeneric, "give an animal number or --local-id", nil)
		return engine.Item{}, NewExitError(ExitCommandError, "missing record reference")
	}
	f, err := record.NewCodec().Normalize(record.Draft{AnimalNumber: args[0]})
	if err != nil {
		return engine.Item{}, validationFailure(a.out, err)
	}
	for _, it := range a.assembler.View(ctx) {
		if it.AnimalNumber == f.AnimalNumber {
			return it, nil
		}
	}
	msg := fmt.Sprintf("no record for animal %s", f.AnimalNumber)
	_ = a.out.Error(ErrCodeNotFound, msg, nil)
	return engine.Item{}, NewExitError(ExitFailure, msg)
}

type mutationOutput struct {
	Source  engine.Source  `json:"source"`
	Key     string         `json:"key"`
	Outcome engine.Outcome `json:"outcome"`
	LocalID int64          `json:"local_id,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// report renders m and maps the outcome to an exit status. AppliedLocalOnly
// on a synced record fails the command when strict is set.
func report(a *app, it engine.Item, m engine.Mutation, verb string, strict bool) error {
	res := mutationOutput{
		Source:  it.Source,
		Key:     it.Key().String(),
		Outcome: m.Outcome,
		LocalID: m.LocalID,
	}
	if m.Err != nil {
		res.Error = m.Err.Error()
	}

	if m.Outcome == engine.Rejected {
		_ = a.out.Error(ErrCodeRejected, res.Error, res)
		return WrapExitError(ExitFailure, verb+" rejected", m.Err)
	}

	err := a.out.Render("", res, func(w io.Writer) error {
		switch {
		case m.Outcome == engine.Applied:
			fmt.Fprintf(w, "%s %s\n", capitalize(verb), it.AnimalNumber)
		case it.Source == engine.SourcePending:
			fmt.Fprintf(w, "%s %s locally (now local id %d, still pending)\n", capitalize(verb), it.AnimalNumber, m.LocalID)
		default:
			fmt.Fprintf(w, "%s %s locally only: %s\n", capitalize(verb), it.AnimalNumber, res.Error)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if strict && m.Outcome == engine.AppliedLocalOnly && it.Source == engine.SourceSynced {
		return WrapExitError(ExitFailure, verb+" not confirmed by the registry", m.Err)
	}
	return nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}

// EditOptions holds flags for the edit command.
type EditOptions struct {
	*RootOptions
	target target
	fields fieldFlags
}

// NewEditCommand creates the edit command.
func NewEditCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "edit [animal-number]",
		Short: "Change fields of a record",
		Long: `Change fields of a pending or synced record. Only the flags given are
changed; the animal number itself cannot change.

A pending record is replaced in the queue. A synced record is updated on the
registry immediately; there is no conflict check, the last write wins.

Example:
  herdsync edit A1 --weight 33 --color Black
  herdsync edit --local-id 4 --status sold`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEdit(cmd, opts, args)
		},
	}
	opts.target.register(cmd)
	opts.fields.register(cmd, false)

	return cmd
}

func runEdit(cmd *cobra.Command, opts *EditOptions, args []string) error {
	a, err := openApp(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	it, err := opts.target.resolve(cmd, a, args)
	if err != nil {
		return err
	}

	draft := opts.fields.overlay(cmd.Flags(), record.DraftFromFields(it.Fields))
	f, err := record.NewCodec().Normalize(draft)
	if err != nil {
		return validationFailure(a.out, err)
	}

	var m engine.Mutation
	if it.Source == engine.SourcePending {
		m = a.mut.EditPending(ctx, it.LocalID, f)
	} else {
		if err := a.requireBackend(); err != nil {
			return err
		}
		m = a.mut.UpdateSynced(ctx, it.Key(), f)
	}
	return report(a, it, m, "updated", true)
}

// DeleteOptions holds flags for the delete command.
type DeleteOptions struct {
	*RootOptions
	target target
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DeleteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "delete [animal-number]",
		Short: "Remove a record",
		Long: `Remove a pending or synced record.

A pending record is dropped from the queue. A synced record is deleted on the
registry and removed from the local cache even if the registry call fails.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(cmd, opts, args)
		},
	}
	opts.target.register(cmd)

	return cmd
}

func runDelete(cmd *cobra.Command, opts *DeleteOptions, args []string) error {
	a, err := openApp(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	it, err := opts.target.resolve(cmd, a, args)
	if err != nil {
		return err
	}

	var m engine.Mutation
	if it.Source == engine.SourcePending {
		m = a.mut.DeletePending(ctx, it.LocalID)
	} else {
		if err := a.requireBackend(); err != nil {
			return err
		}
		m = a.mut.DeleteSynced(ctx, it.Key())
	}
	return report(a, it, m, "deleted", false)
}
