package melt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/heimdex/heimdex-render/internal/logging"
	"github.com/heimdex/heimdex-render/internal/process"
)

// DefaultTarget is the target used when none is named.
const DefaultTarget = "main"

var (
	// ErrUnknownProfile is a warning: the name is kept but size and fps are
	// left unchanged.
	ErrUnknownProfile = errors.New("unknown profile")
	// ErrNoCommand is returned by Output when the target compiled to nothing.
	ErrNoCommand = errors.New("no command for target")
)

// Config holds the builder settings that do not belong to a single command.
type Config struct {
	MeltPath       string
	TmpDir         string
	WipesDir       string
	Debug          bool
	Logging        bool
	MaxLogSize     int64
	DateFormat     string
	SessionEnabled bool
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		MeltPath:   "/usr/bin/melt",
		TmpDir:     "uploads/tmp",
		WipesDir:   "assets/wipes",
		MaxLogSize: logging.DefaultJournalSize,
		DateFormat: logging.DefaultDateLayout,
	}
}

// Consumer is the output sink of a target.
type Consumer struct {
	Sink       string
	OutputPath string
	Options    Node
}

// Builder accumulates option trees per target and compiles them into melt
// command lines. A Builder is not safe for concurrent use.
type Builder struct {
	cfg     Config
	logger  *slog.Logger
	journal logging.Journal

	profile string
	width   int
	height  int
	fps     int
	format  string

	targets   []string
	options   map[string][]Node
	consumers map[string]Consumer
	commands  map[string]string

	shell func(ctx context.Context, cmdline string) ([]byte, error)
}

// NewBuilder returns a builder with the default profile, 1280x720 at 25 fps.
func NewBuilder(cfg Config, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Builder{
		cfg:       cfg,
		logger:    logging.WithComponent(logger, "melt"),
		journal:   logging.Discard,
		profile:   DefaultProfile,
		width:     1280,
		height:    720,
		fps:       25,
		options:   make(map[string][]Node),
		consumers: make(map[string]Consumer),
		commands:  make(map[string]string),
		shell:     process.Shell,
	}
	return b
}

// SetJournal sets where command lines are recorded when Config.Logging is on.
func (b *Builder) SetJournal(j logging.Journal) *Builder {
	if j == nil {
		j = logging.Discard
	}
	b.journal = j
	return b
}

// SetShell replaces how foreground commands (Output, ClipProperties) run.
func (b *Builder) SetShell(fn func(ctx context.Context, cmdline string) ([]byte, error)) *Builder {
	if fn == nil {
		fn = process.Shell
	}
	b.shell = fn
	return b
}

func (b *Builder) Config() Config           { return b.cfg }
func (b *Builder) Logger() *slog.Logger     { return b.logger }
func (b *Builder) Journal() logging.Journal { return b.journal }
func (b *Builder) Width() int               { return b.width }
func (b *Builder) Height() int              { return b.height }
func (b *Builder) Fps() int                 { return b.fps }
func (b *Builder) Format() string           { return b.format }
func (b *Builder) ProfileName() string      { return b.profile }

// UpdateConfig applies fn to the builder configuration.
func (b *Builder) UpdateConfig(fn func(*Config)) *Builder {
	fn(&b.cfg)
	return b
}

func (b *Builder) SetOutputSize(width, height int) *Builder {
	b.width = width
	b.height = height
	return b
}

func (b *Builder) SetFps(fps int) *Builder {
	b.fps = fps
	return b
}

// SetOutputFormat fixes the consumer format instead of inferring it from the
// output path.
func (b *Builder) SetOutputFormat(format string) *Builder {
	b.format = format
	return b
}

// SetProfile selects a named profile. Known profiles also set size and fps.
// An unknown name is still recorded and emitted, and ErrUnknownProfile is
// returned so callers can warn.
func (b *Builder) SetProfile(name string) error {
	b.profile = name
	p, ok := LookupProfile(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	b.SetOutputSize(p.Width, p.Height)
	b.SetFps(p.Fps())
	return nil
}

// AddOption appends an option tree to a target. Targets compile in the order
// they were first used.
func (b *Builder) AddOption(n Node, target string) *Builder {
	target = targetOrDefault(target)
	if _, ok := b.options[target]; !ok {
		b.targets = append(b.targets, target)
	}
	b.options[target] = append(b.options[target], n)
	return b
}

// SetOutputVideoOptions installs the avformat consumer for a target. The
// format defaults are merged with overrides, overrides winning. When no format
// was set it is taken from the output path extension. An unusable format falls
// back to mp4 and ErrUnknownFormat is returned as a warning.
func (b *Builder) SetOutputVideoOptions(outputPath string, overrides Node, target string) error {
	if b.format == "" {
		format := Extension(outputPath)
		if _, ok := FormatDefaults(format); !ok {
			format = FormatMP4
		}
		b.format = format
	}

	var warn error
	defaults, ok := FormatDefaults(b.format)
	if !ok {
		warn = fmt.Errorf("%w: %q", ErrUnknownFormat, b.format)
		defaults, _ = FormatDefaults(FormatMP4)
	}

	b.consumers[targetOrDefault(target)] = Consumer{
		Sink:       "avformat",
		OutputPath: outputPath,
		Options:    Merge(defaults, overrides),
	}
	return warn
}

// AddReadyMadeTransition appends the mix and mixer options for a named
// transition. Zero sizes in opts default to the builder size.
func (b *Builder) AddReadyMadeTransition(kind string, durationFrames int, opts TransitionOptions, target string) error {
	if opts.Width == 0 {
		opts.Width = b.width
	}
	if opts.Height == 0 {
		opts.Height = b.height
	}
	nodes, err := TransitionNodes(kind, durationFrames, opts, b.cfg.WipesDir)
	if err != nil {
		return err
	}
	for _, n := range nodes {
		b.AddOption(n, target)
	}
	return nil
}

// CreateCommands compiles every target that has options.
func (b *Builder) CreateCommands() {
	b.commands = make(map[string]string, len(b.targets))
	if b.cfg.Debug {
		for _, target := range b.targets {
			b.logger.Info("option tree", "target", target, "tree", Values(b.options[target]...).String())
		}
	}

	for _, target := range b.targets {
		var cmd strings.Builder
		cmd.WriteString(b.cfg.MeltPath)
		for _, n := range b.options[target] {
			writeOption(&cmd, n)
		}
		if _, ok := b.consumers[target]; ok && b.profile != "" {
			cmd.WriteString(lineBreak)
			cmd.WriteString("-profile ")
			cmd.WriteString(b.profile)
			cmd.WriteString(" -progress")
		}
		cmd.WriteString(b.ConsumerString(target))
		b.commands[target] = strings.TrimSpace(cmd.String())
	}
}

func writeOption(cmd *strings.Builder, n Node) {
	if n.IsScalar() {
		cmd.WriteString(Serialize(n, true, false))
		return
	}
	for _, e := range n.Entries() {
		if e.Key != "" && !IsStructuralKey(e.Key) {
			cmd.WriteString(lineBreak)
			cmd.WriteString("-")
			cmd.WriteString(e.Key)
		}
		cmd.WriteString(Serialize(e.Value, true, false))
	}
}

// Commands returns the commands of the last compile, keyed by target.
func (b *Builder) Commands() map[string]string {
	out := make(map[string]string, len(b.commands))
	for k, v := range b.commands {
		out[k] = v
	}
	return out
}

// Targets returns the targets holding options in first-use order.
func (b *Builder) Targets() []string {
	return append([]string(nil), b.targets...)
}

// ConsumerString renders the -consumer clause of a target, or "" when it has
// no consumer.
func (b *Builder) ConsumerString(target string) string {
	c, ok := b.consumers[targetOrDefault(target)]
	if !ok {
		return ""
	}
	return lineBreak + "-consumer " + c.Sink + `:"` + c.OutputPath + `"` + Serialize(c.Options, true, false)
}

// CommandOutput compiles all targets, clears the accumulated options and
// returns the command for target. A second call returns "".
func (b *Builder) CommandOutput(target string) string {
	b.CreateCommands()
	b.ClearOptions()
	return b.commands[targetOrDefault(target)]
}

// Output compiles and drains like CommandOutput, then runs the command in the
// foreground and returns its standard output.
func (b *Builder) Output(ctx context.Context, target string) (string, error) {
	cmd := b.CommandOutput(target)
	if cmd == "" {
		return "", fmt.Errorf("%w: %s", ErrNoCommand, targetOrDefault(target))
	}
	b.record("Command:\n" + cmd)
	out, err := b.shell(ctx, cmd)
	if err != nil {
		return string(out), fmt.Errorf("run melt: %w", err)
	}
	return string(out), nil
}

// ClearOptions drops options, consumers and the format. Profile, size and
// fps are kept.
func (b *Builder) ClearOptions() {
	b.targets = nil
	b.options = make(map[string][]Node)
	b.consumers = make(map[string]Consumer)
	b.format = ""
}

func (b *Builder) record(msg string) {
	if !b.cfg.Logging {
		return
	}
	if err := b.journal.Record(0, msg); err != nil {
		b.logger.Warn("failed to write journal", "error", err)
	}
}

func targetOrDefault(target string) string {
	if target == "" {
		return DefaultTarget
	}
	return target
}
