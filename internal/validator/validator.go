// Package validator turns raw stage submissions into normalized parameters.
// Validation is pure: it never touches the candidate set or the session.
package validator

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/aretw0/canopy/pkg/domain"
)

// Validate checks raw against the stage definition and returns the normalized parameter
// or a *domain.ValidationError.
func Validate(stage domain.Stage, raw domain.RawInput) (domain.Parameter, error) {
	switch stage.Kind {
	case domain.KindCategorical:
		return validateCategorical(stage, raw.Selection)
	case domain.KindRange:
		return validateRange(stage, raw.From, raw.To)
	case domain.KindTerminal:
		return domain.Parameter{}, fail(stage, domain.CodeTerminalStage, "the final results stage accepts no input")
	default:
		return domain.Parameter{}, fmt.Errorf("validator: unknown stage kind %q", stage.Kind)
	}
}

func validateCategorical(stage domain.Stage, selection string) (domain.Parameter, error) {
	code, err := SanitizeInput(selection)
	if err != nil {
		return domain.Parameter{}, fail(stage, domain.CodeInvalidInput, err.Error())
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.Parameter{}, fail(stage, domain.CodeMissingSelection, fmt.Sprintf("please select a %s", stage.Name))
	}
	if !stage.HasOption(code) {
		return domain.Parameter{}, fail(stage, domain.CodeUnknownOption, fmt.Sprintf("%q is not a valid %s option", code, stage.Name))
	}
	return domain.OptionParameter(code), nil
}

func validateRange(stage domain.Stage, rawFrom, rawTo string) (domain.Parameter, error) {
	from, err := parseBound(rawFrom)
	if err != nil {
		return domain.Parameter{}, fail(stage, domain.CodeNotANumber, fmt.Sprintf("'From' value %q is not a number", rawFrom))
	}
	to, err := parseBound(rawTo)
	if err != nil {
		return domain.Parameter{}, fail(stage, domain.CodeNotANumber, fmt.Sprintf("'To' value %q is not a number", rawTo))
	}

	if from < stage.Min || from > stage.Max || to < stage.Min || to > stage.Max {
		return domain.Parameter{}, fail(stage, domain.CodeOutOfBounds,
			fmt.Sprintf("values must be within %g - %g %s", stage.Min, stage.Max, stage.Unit))
	}
	if to <= from {
		return domain.Parameter{}, fail(stage, domain.CodeInvertedRange, "'To' value must be higher than 'From' value")
	}
	return domain.RangeParameter(from, to), nil
}

func parseBound(raw string) (float64, error) {
	clean, err := SanitizeInput(raw)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(clean), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", raw)
	}
	return v, nil
}

func fail(stage domain.Stage, code domain.ValidationCode, msg string) *domain.ValidationError {
	return &domain.ValidationError{Code: code, ParameterID: stage.ParameterID, Message: msg}
}
