// Package commands holds the bot's built-in chat commands. They are ordinary
// handlers with no special status in the dispatcher.
package commands

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"throttlebot/internal/clock"
	"throttlebot/internal/dispatch"
)

const (
	TimeFormat     = "2006-01-02 15:04:05"
	DefaultVersion = "0.0.0+DEFAULT"
)

// Version may be set at build time:
//
//	go build -ldflags "-X throttlebot/internal/commands.Version=1.2.3"
var Version = ""

// ResolveVersion returns Version, the main module version from build info, or
// DefaultVersion.
func ResolveVersion() string {
	if v := strings.TrimSpace(Version); v != "" {
		return v
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		if v := bi.Main.Version; v != "" && v != "(devel)" {
			return strings.TrimPrefix(v, "v")
		}
	}
	return DefaultVersion
}

// Default cooldowns, milliseconds.
const (
	TimeCooldown    int64 = 5000
	VersionCooldown int64 = 10000
	HelpCooldown    int64 = 10000
)

// Options tune the built-ins. Zero values pick defaults.
type Options struct {
	Clock     clock.Clock
	Location  *time.Location
	Version   string
	Cooldowns map[string]int64 // token -> ms, overrides defaults
}

// Register installs !time, !version and !help on d.
func Register(d *dispatch.Dispatcher, opt Options) error {
	p := d.Prefix()
	cmds := []dispatch.Command{
		Time(p, opt.Clock, opt.Location),
		VersionCmd(p, opt.Version),
		Help(p, d),
	}
	for _, c := range cmds {
		if ms, ok := opt.Cooldowns[strings.ToLower(c.Token)]; ok {
			c.Cooldown = ms
		}
		if err := d.RegisterCommand(c); err != nil {
			return err
		}
	}
	return nil
}

// Time replies with the current time.
func Time(prefix string, clk clock.Clock, loc *time.Location) dispatch.Command {
	if clk == nil {
		clk = clock.System()
	}
	if loc == nil {
		loc = time.Local
	}
	return dispatch.Command{
		Token:       prefix + "time",
		Description: "current time",
		Usage:       prefix + "time",
		Cooldown:    TimeCooldown,
		Handle: func(ctx context.Context, req *dispatch.Request) error {
			now := time.UnixMilli(clk.NowMillis()).In(loc)
			return req.Reply(ctx, now.Format(TimeFormat))
		},
	}
}

// VersionCmd announces the bot version as an action line ("v1.2.3").
func VersionCmd(prefix, version string) dispatch.Command {
	if strings.TrimSpace(version) == "" {
		version = ResolveVersion()
	}
	return dispatch.Command{
		Token:       prefix + "version",
		Description: "bot version",
		Usage:       prefix + "version",
		Cooldown:    VersionCooldown,
		Handle: func(ctx context.Context, req *dispatch.Request) error {
			return req.Action(ctx, "v"+version)
		},
	}
}

// Help lists the commands registered on d with their cooldowns.
func Help(prefix string, d *dispatch.Dispatcher) dispatch.Command {
	return dispatch.Command{
		Token:       prefix + "help",
		Description: "list commands",
		Usage:       prefix + "help",
		Cooldown:    HelpCooldown,
		Handle: func(ctx context.Context, req *dispatch.Request) error {
			return req.Reply(ctx, HelpText(d))
		},
	}
}

func HelpText(d *dispatch.Dispatcher) string {
	cmds := d.Commands()
	parts := make([]string, 0, len(cmds))
	for _, c := range cmds {
		s := c.Token
		if c.Description != "" {
			s += " - " + c.Description
		}
		if ms, ok := d.Throttler().Cooldown(c.Token); ok && ms > 0 {
			s += fmt.Sprintf(" (every %s)", time.Duration(ms)*time.Millisecond)
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, "; ")
}
