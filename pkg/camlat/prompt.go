package camlat

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"

	"github.com/teslashibe/go-camlat/pkg/camera"
)

// ErrNoCases is returned when the interactive selection is empty.
var ErrNoCases = errors.New("no test cases selected - please select at least one")

// CaseOptions builds the multi-select options for a suite, all preselected.
func CaseOptions(cases []camera.Config) []huh.Option[string] {
	opts := make([]huh.Option[string], len(cases))
	for i, c := range cases {
		label := fmt.Sprintf("%-28s %s", c.Name, c.Describe())
		opts[i] = huh.NewOption(label, c.Name).Selected(true)
	}
	return opts
}

// PromptCases asks which cases of the suite to run.
func PromptCases(cases []camera.Config) ([]string, error) {
	var selected []string

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Select test cases").
				Description("Cases run in suite order").
				Options(CaseOptions(cases)...).
				Value(&selected),
		),
	).WithTheme(huh.ThemeCatppuccin()).WithKeyMap(huh.NewDefaultKeyMap())

	if err := form.Run(); err != nil {
		return nil, err
	}
	if len(selected) == 0 {
		return nil, ErrNoCases
	}
	return selected, nil
}
