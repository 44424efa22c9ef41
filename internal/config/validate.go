package config

import (
	"fmt"
	"strings"
)

type Validation struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (v *Validation) addErr(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}
func (v *Validation) addWarn(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}
func (v Validation) OK() bool { return len(v.Errors) == 0 }

// NormalizeAndValidate fills defaults, trims free-text fields and reports
// anything that would make the engine misbehave at runtime.
func NormalizeAndValidate(cfg Config) (Config, Validation) {
	out := cfg
	var res Validation

	out.App.Addr = strings.TrimSpace(out.App.Addr)
	if out.App.Addr == "" {
		out.App.Addr = ":8080"
	}
	if out.App.Env == "" {
		out.App.Env = "dev"
	}
	if out.App.Env != "dev" && out.App.Env != "prod" {
		res.addErr("app.env must be dev or prod, got %q", out.App.Env)
	}
	if out.App.DataDir == "" {
		out.App.DataDir = "./data"
	}

	if strings.TrimSpace(out.Database.URL) == "" {
		res.addErr("database.url (or DATABASE_URL / POSTGRES_*) is required")
	}

	if out.Client.TimeoutSeconds <= 0 {
		out.Client.TimeoutSeconds = 30
	}
	if out.Client.RetryAttempts <= 0 {
		out.Client.RetryAttempts = 3
	}
	if out.Client.RatePerHost <= 0 {
		out.Client.RatePerHost = 0.5
	}
	if out.Client.RateBurst <= 0 {
		out.Client.RateBurst = 2
	}

	if out.Scheduler.StaleAfterDays <= 0 {
		out.Scheduler.StaleAfterDays = 7
	}

	out.Search.City = strings.TrimSpace(out.Search.City)
	if out.Scheduler.Enabled && out.Search.City == "" {
		res.addErr("search.city is required when the scheduler is enabled")
	}

	enabled := 0
	for name, src := range out.Sources {
		if !src.Enabled {
			continue
		}
		enabled++
		if src.IntervalMinutes <= 0 {
			src.IntervalMinutes = 60
			out.Sources[name] = src
		} else if src.IntervalMinutes < 5 {
			res.addWarn("sources.%s.interval_minutes is very low (%d); the platform may rate-limit or block.", name, src.IntervalMinutes)
		}
	}
	if out.Scheduler.Enabled && enabled == 0 {
		res.addWarn("scheduler is enabled but no source is; nothing will run.")
	}

	if out.Search.City != "" {
		if err := out.Search.Criteria().Validate(); err != nil {
			res.addErr("search: %v", err)
		}
	}

	return out, res
}
