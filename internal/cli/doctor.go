package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"typstlab/internal/config"
	"typstlab/internal/paths"
	"typstlab/internal/state"
	"typstlab/internal/tools"
	"typstlab/internal/tui"
)

func newDoctorCmd(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check project and toolchain health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, opts)
		},
	}
}

type healthCheck struct {
	Name    string   `json:"name" yaml:"name"`
	Status  string   `json:"status" yaml:"status"` // "ok", "warning", "error"
	Summary string   `json:"summary" yaml:"summary"`
	Details []string `json:"details,omitempty" yaml:"details,omitempty"`
}

type doctorReport struct {
	Project string        `json:"project" yaml:"project"`
	Checks  []healthCheck `json:"checks" yaml:"checks"`
}

func runDoctor(cmd *cobra.Command, opts *RootOptions) error {
	pp, err := paths.Resolve(opts.Project)
	if err != nil {
		report := doctorReport{Checks: []healthCheck{
			{Name: "Project", Status: "error", Summary: err.Error()},
			checkCache(),
		}}
		return writeDoctorResult(cmd, opts, report)
	}

	report := doctorReport{Project: pp.Root}

	cfg, cfgErr := config.Load(pp.ConfigFile)
	var unknown *config.UnknownKeysError
	if errors.As(cfgErr, &unknown) {
		cfgErr = nil
	}
	configCheck := checkConfig(cfg, cfgErr)
	if unknown != nil {
		configCheck.Details = append(configCheck.Details, unknown.Error())
		if configCheck.Status == "ok" {
			configCheck.Status = "warning"
		}
	}
	report.Checks = append(report.Checks, configCheck)
	report.Checks = append(report.Checks, checkState(pp))

	if configCheck.Status != "error" {
		s := &session{opts: opts, paths: pp, cfg: cfg, logger: zerolog.Nop(), inProject: true}
		if opened, err := openSession(cmd, opts, true); err == nil {
			defer opened.Close()
			s = opened
		}
		resolver, err := tools.NewResolver(s.logger)
		if err != nil {
			return err
		}
		resolver.ReadOnly = true
		for _, req := range s.requests(false) {
			report.Checks = append(report.Checks, checkTool(cmd, resolver, req))
		}
	}
	report.Checks = append(report.Checks, checkCache())

	return writeDoctorResult(cmd, opts, report)
}

func checkConfig(cfg config.Config, cfgErr error) healthCheck {
	if cfgErr != nil {
		return healthCheck{Name: "Config", Status: "error", Summary: cfgErr.Error()}
	}

	var warnings, errs []string
	for _, v := range cfg.ValidateStrict() {
		switch v.Level {
		case "warning":
			warnings = append(warnings, v.Message)
		case "error":
			errs = append(errs, v.Message)
		}
	}

	summary := "typst " + tui.NonEmptyOrDash(cfg.Typst.Version)
	if cfg.Tools.UV.Required {
		summary += ", uv " + tui.NonEmptyOrDash(cfg.Tools.UV.Version)
	}
	if cfg.Offline() {
		summary += "; network disabled"
	}

	if len(errs) > 0 {
		return healthCheck{Name: "Config", Status: "error", Summary: fmt.Sprintf("%s; %d errors", summary, len(errs)), Details: append(errs, warnings...)}
	}
	if len(warnings) > 0 {
		return healthCheck{Name: "Config", Status: "warning", Summary: fmt.Sprintf("%s; %d warnings", summary, len(warnings)), Details: warnings}
	}
	return healthCheck{Name: "Config", Status: "ok", Summary: summary}
}

func checkState(pp paths.ProjectPaths) healthCheck {
	rec, status, err := state.Inspect(pp.StateFile)
	switch status {
	case state.StatusMissing:
		return healthCheck{Name: "State", Status: "ok", Summary: "not written yet"}
	case state.StatusCurrent:
		summary := fmt.Sprintf("%d tools recorded", len(rec.Tools))
		if rec.Sync != nil && rec.Sync.LastSync != nil {
			summary += ", last sync " + rec.Sync.LastSync.Format("2006-01-02 15:04:05Z07:00")
		}
		return healthCheck{Name: "State", Status: "ok", Summary: summary}
	default:
		check := healthCheck{Name: "State", Status: "warning", Summary: string(status) + "; will be rebuilt on next resolve"}
		if err != nil {
			check.Details = []string{err.Error()}
		}
		return check
	}
}

// checkTool resolves without installing or recording, so doctor never
// touches the network or the project state.
func checkTool(cmd *cobra.Command, resolver *tools.Resolver, req tools.Request) healthCheck {
	name := displayName(req.Tool)
	res, err := resolver.Resolve(cmd.Context(), req)
	if err != nil {
		return healthCheck{Name: name, Status: "error", Summary: err.Error()}
	}
	if !res.Found() {
		details := make([]string, 0, len(res.SearchedLocations)+2)
		for _, loc := range res.SearchedLocations {
			details = append(details, "searched "+loc)
		}
		details = append(details, tools.InstallHints(req.Tool, req.RequiredVersion)...)
		return healthCheck{Name: name, Status: "error", Summary: req.RequiredVersion + " not found", Details: details}
	}
	return healthCheck{
		Name:    name,
		Status:  "ok",
		Summary: fmt.Sprintf("%s (%s) %s", res.Info.Version, res.Info.Source, res.Info.Path),
	}
}

func checkCache() healthCheck {
	root, err := paths.ManagedCacheRoot()
	if err != nil {
		return healthCheck{Name: "Cache", Status: "error", Summary: err.Error()}
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return healthCheck{Name: "Cache", Status: "error", Summary: fmt.Sprintf("%s not writable", root), Details: []string{err.Error()}}
	}
	tmp, err := os.CreateTemp(root, ".doctor-*")
	if err != nil {
		return healthCheck{Name: "Cache", Status: "error", Summary: fmt.Sprintf("%s not writable", root), Details: []string{err.Error()}}
	}
	tmp.Close()
	os.Remove(tmp.Name())
	return healthCheck{Name: "Cache", Status: "ok", Summary: root}
}

func writeDoctorResult(cmd *cobra.Command, opts *RootOptions, report doctorReport) error {
	failed := false
	for _, c := range report.Checks {
		if c.Status == "error" {
			failed = true
		}
	}

	if opts.structured() {
		if err := writeStructured(cmd.OutOrStdout(), opts.Format, report); err != nil {
			return err
		}
	} else {
		writeDoctorText(cmd, report)
	}

	if failed {
		return &exitError{code: 1}
	}
	return nil
}

func writeDoctorText(cmd *cobra.Command, report doctorReport) {
	bold := lipgloss.NewStyle().Bold(true).Inline(true)
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Inline(true)
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Inline(true)
	red := lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Inline(true)

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, bold.Render("PROJECT HEALTH:")+" "+tui.NonEmptyOrDash(report.Project))

	for _, c := range report.Checks {
		var statusStr string
		switch c.Status {
		case "ok":
			statusStr = green.Render("OK")
		case "warning":
			statusStr = yellow.Render("WARN")
		case "error":
			statusStr = red.Render("ERROR")
		}
		fmt.Fprintf(out, "  %-12s %s    %s\n", c.Name+":", statusStr, c.Summary)
		for _, d := range c.Details {
			fmt.Fprintf(out, "  %-12s   - %s\n", "", d)
		}
	}
}

func displayName(tool string) string {
	switch tool {
	case "typst":
		return "Typst"
	case "uv":
		return "uv"
	default:
		return tool
	}
}
