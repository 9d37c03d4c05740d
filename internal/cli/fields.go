package cli

import (
	"errors"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/roach88/herdsync/internal/record"
)

// fieldFlags binds one string flag per record field.
type fieldFlags struct {
	draft record.Draft
}

func (ff *fieldFlags) register(cmd *cobra.Command, withAnimal bool) {
	fs := cmd.Flags()
	if withAnimal {
		fs.StringVarP(&ff.draft.AnimalNumber, "animal", "a", "", "animal number (required)")
	}
	fs.StringVar(&ff.draft.MotherNumber, "mother", "", "mother's animal number")
	fs.StringVar(&ff.draft.FatherNumber, "father", "", "father's animal number")
	fs.StringVar(&ff.draft.BirthDate, "birth", "", "birth date, YYYY-MM-DD or DD/MM/YYYY")
	fs.StringVar(&ff.draft.Weight, "weight", "", "birth weight in kg")
	fs.StringVar(&ff.draft.WeaningWeight, "weaning-weight", "", "weaning weight in kg")
	fs.StringVar(&ff.draft.Gender, "gender", "", "male or female")
	fs.StringVar(&ff.draft.Status, "status", "", "active, sold or dead (default active)")
	fs.StringVar(&ff.draft.Color, "color", "", "coat color")
	fs.StringVar(&ff.draft.Notes, "notes", "", "free-form notes")
	fs.StringVar(&ff.draft.InseminationID, "insemination", "", "insemination event id")
}

// overlay copies every flag the user set onto base.
func (ff *fieldFlags) overlay(fs *pflag.FlagSet, base record.Draft) record.Draft {
	set := func(name string, dst *string, v string) {
		if fs.Changed(name) {
			*dst = v
		}
	}
	set("mother", &base.MotherNumber, ff.draft.MotherNumber)
	set("father", &base.FatherNumber, ff.draft.FatherNumber)
	set("birth", &base.BirthDate, ff.draft.BirthDate)
	set("weight", &base.Weight, ff.draft.Weight)
	set("weaning-weight", &base.WeaningWeight, ff.draft.WeaningWeight)
	set("gender", &base.Gender, ff.draft.Gender)
	set("status", &base.Status, ff.draft.Status)
	set("color", &base.Color, ff.draft.Color)
	set("notes", &base.Notes, ff.draft.Notes)
	set("insemination", &base.InseminationID, ff.draft.InseminationID)
	return base
}

// validationFailure reports a codec rejection and returns the exit error.
func validationFailure(out *OutputFormatter, err error) error {
	var details any
	var ve *record.ValidationError
	if errors.As(err, &ve) {
		details = ve.Fields
	}
	_ = out.Error(ErrCodeValidation, err.Error(), details)
	return WrapExitError(ExitCommandError, "invalid record", err)
}
