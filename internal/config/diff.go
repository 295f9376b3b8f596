package config

import (
	"sort"
	"strings"

	logx "invitebot/pkg/logx"
)

// Change describes what differs between two configs.
type Change struct {
	// Sections lists every changed top-level section.
	Sections []string
	// RestartRequired lists changed sections that only take effect after a restart.
	RestartRequired []string
	// Fields are safe log attributes for the new values. Secrets are never included.
	Fields []logx.Field
}

func (c Change) Empty() bool { return len(c.Sections) == 0 }

func (c Change) Has(section string) bool {
	for _, s := range c.Sections {
		if s == section {
			return true
		}
	}
	return false
}

// SummarizeChange compares two configs section by section.
// Hot sections are logging, relay, dedup.max_entries and ops.
func SummarizeChange(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var ch Change
	mark := func(section string, restart bool, fields ...logx.Field) {
		ch.Sections = append(ch.Sections, section)
		if restart {
			ch.RestartRequired = append(ch.RestartRequired, section)
		}
		ch.Fields = append(ch.Fields, fields...)
	}

	if strings.TrimSpace(oldCfg.WebAppURL) != strings.TrimSpace(newCfg.WebAppURL) {
		mark("webapp_url", true, logx.String("webapp_url", strings.TrimSpace(newCfg.WebAppURL)))
	}

	// never log the token
	if oldCfg.Telegram != newCfg.Telegram {
		mark("telegram", true,
			logx.Bool("telegram.token_changed", oldCfg.Telegram.Token != newCfg.Telegram.Token),
			logx.String("telegram.poll_timeout", newCfg.Telegram.PollTimeout),
			logx.Bool("telegram.callbacks", newCfg.Telegram.Callbacks),
		)
	}

	if oldCfg.Datastore != newCfg.Datastore {
		mark("datastore", true,
			logx.String("datastore.driver", newCfg.Datastore.Driver),
			logx.Bool("datastore.url_set", strings.TrimSpace(newCfg.Datastore.URL) != ""),
			logx.Bool("datastore.dsn_set", strings.TrimSpace(newCfg.Datastore.DSN) != ""),
			logx.Bool("datastore.path_set", strings.TrimSpace(newCfg.Datastore.Path) != ""),
		)
	}

	if oldCfg.Relay != newCfg.Relay {
		mark("relay", false, logx.String("relay.poll_interval", newCfg.Relay.PollInterval))
	}

	od, nd := oldCfg.Dedup, newCfg.Dedup
	if od != nd {
		// max_entries is applied live; everything else picks a backend.
		od.MaxEntries, nd.MaxEntries = 0, 0
		mark("dedup", od != nd,
			logx.Int("dedup.max_entries", newCfg.Dedup.MaxEntries),
			logx.String("dedup.driver", newCfg.Dedup.Driver),
			logx.String("dedup.prune_schedule", newCfg.Dedup.PruneSchedule),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		mark("logging", false,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_set", strings.TrimSpace(newCfg.Logging.File) != ""),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.TelegramChat != 0),
		)
	}

	if strings.TrimSpace(oldCfg.Ops.Addr) != strings.TrimSpace(newCfg.Ops.Addr) {
		mark("ops", false, logx.String("ops.addr", strings.TrimSpace(newCfg.Ops.Addr)))
	}

	sort.Strings(ch.Sections)
	sort.Strings(ch.RestartRequired)
	return ch
}
