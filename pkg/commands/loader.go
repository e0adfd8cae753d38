package commands

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"twitchbot/pkg/chat"
	"twitchbot/pkg/logger"
)

// Definition is the on-disk form of a command.
//
//	name: so
//	aliases: [shoutout]
//	userlevel: moderator
//	args:
//	  - name: user
//	    type: string
//	    prepare: strip_at
//	run:
//	  type: say
//	  text: "Go follow https://twitch.tv/{{ .Params.user }}"
type Definition struct {
	Name           string          `yaml:"name"`
	Aliases        []string        `yaml:"aliases"`
	Description    string          `yaml:"description"`
	Examples       []string        `yaml:"examples"`
	UserLevel      string          `yaml:"userlevel"`
	Args           []ArgDefinition `yaml:"args"`
	HideFromHelp   bool            `yaml:"hide_from_help"`
	PrivmsgOnly    bool            `yaml:"privmsg_only"`
	BotChannelOnly bool            `yaml:"bot_channel_only"`
	Run            *Action         `yaml:"run"`
	Execute        *Action         `yaml:"execute"`
}

// ArgDefinition is the on-disk form of an ArgSpec.
type ArgDefinition struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Default any    `yaml:"default"`
	Prepare string `yaml:"prepare"`
}

// Action renders Text and sends it the way Type says.
type Action struct {
	Type string `yaml:"type"`
	Text string `yaml:"text"`
}

// Reply types accepted by Action.Type.
const (
	ActionReply       = "reply"
	ActionActionReply = "action_reply"
	ActionSay         = "say"
	ActionActionSay   = "action_say"
)

// Prepares are the named transforms a definition may reference.
var Prepares = map[string]PrepareFunc{
	"lowercase": func(v any, _ *chat.Message) any {
		if s, ok := v.(string); ok {
			return strings.ToLower(s)
		}
		return nil
	},
	"uppercase": func(v any, _ *chat.Message) any {
		if s, ok := v.(string); ok {
			return strings.ToUpper(s)
		}
		return nil
	},
	"strip_at": func(v any, _ *chat.Message) any {
		if s, ok := v.(string); ok {
			return strings.TrimPrefix(s, "@")
		}
		return nil
	},
}

// Validation is the outcome of checking one definition: Valid or Invalid.
type Validation interface {
	validation()
}

// Valid carries a command ready for registration.
type Valid struct {
	Path    string
	Command *Command
}

// Invalid explains why a definition was rejected.
type Invalid struct {
	Path   string
	Reason string
}

func (Valid) validation()   {}
func (Invalid) validation() {}

// Error implements error so Invalid can be wrapped and logged.
func (i Invalid) Error() string {
	return fmt.Sprintf("%s: %s", i.Path, i.Reason)
}

// Unwrap ties every Invalid to ErrInvalidDefinition.
func (i Invalid) Unwrap() error {
	return ErrInvalidDefinition
}

// TemplateData is what action templates see.
type TemplateData struct {
	Message *chat.Message
	Params  Params
	Prefix  string
}

// Loader turns definition files into commands.
type Loader struct {
	responder *chat.Responder
	prefix    func() string
	log       *logger.Logger
}

// NewLoader creates a loader whose commands reply through responder.
func NewLoader(responder *chat.Responder, prefix func() string, log *logger.Logger) *Loader {
	if prefix == nil {
		prefix = func() string { return "!" }
	}
	return &Loader{responder: responder, prefix: prefix, log: log.Module("loader")}
}

// LoadDir reads every *.yaml / *.yml file in dir. Invalid definitions are
// logged and returned as Invalid; only an unreadable directory is an error.
func (l *Loader) LoadDir(dir string) ([]Validation, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading commands dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !isDefinitionFile(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	results := make([]Validation, 0, len(names))
	for _, name := range names {
		res := l.LoadFile(filepath.Join(dir, name))
		if inv, ok := res.(Invalid); ok {
			l.log.Warn("Skipping invalid command definition",
				zap.String("path", inv.Path),
				zap.String("reason", inv.Reason))
		}
		results = append(results, res)
	}

	return results, nil
}

// LoadFile decodes and validates one definition file.
func (l *Loader) LoadFile(path string) Validation {
	data, err := os.ReadFile(path)
	if err != nil {
		return Invalid{Path: path, Reason: err.Error()}
	}

	var def Definition
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		if errors.Is(err, io.EOF) {
			return Invalid{Path: path, Reason: "empty definition"}
		}
		return Invalid{Path: path, Reason: fmt.Sprintf("decoding: %v", err)}
	}

	return l.Validate(path, &def)
}

// Validate checks that def exposes a descriptor and a run or execute action.
func (l *Loader) Validate(path string, def *Definition) Validation {
	invalid := func(format string, args ...any) Validation {
		return Invalid{Path: path, Reason: fmt.Sprintf(format, args...)}
	}

	if strings.TrimSpace(def.Name) == "" {
		return invalid("missing name")
	}
	if def.Run == nil && def.Execute == nil {
		return invalid("no run or execute action")
	}

	tier := TierEveryone
	if def.UserLevel != "" {
		t, err := ParseTier(def.UserLevel)
		if err != nil {
			return invalid("%v", err)
		}
		tier = t
	}

	args := make([]ArgSpec, 0, len(def.Args))
	seen := make(map[string]bool, len(def.Args))
	for i, a := range def.Args {
		if a.Name == "" {
			return invalid("args[%d]: missing name", i)
		}
		if seen[a.Name] {
			return invalid("args[%d]: duplicate name %q", i, a.Name)
		}
		seen[a.Name] = true

		spec := ArgSpec{Name: a.Name, Type: ArgType(strings.ToLower(a.Type))}
		switch spec.Type {
		case "":
			spec.Type = ArgString
		case ArgString, ArgNumber, ArgBoolean:
		default:
			return invalid("args[%d]: unknown type %q", i, a.Type)
		}
		if a.Default != nil {
			spec.Default = normalizeDefault(spec.Type, a.Default)
			spec.HasDefault = true
		}
		if a.Prepare != "" {
			fn, ok := Prepares[a.Prepare]
			if !ok {
				return invalid("args[%d]: unknown prepare %q", i, a.Prepare)
			}
			spec.Prepare = fn
		}
		args = append(args, spec)
	}

	h := &templateHandler{responder: l.responder, prefix: l.prefix}
	var err error
	if h.run, err = compileAction(def.Name+".run", def.Run); err != nil {
		return invalid("run: %v", err)
	}
	if h.execute, err = compileAction(def.Name+".execute", def.Execute); err != nil {
		return invalid("execute: %v", err)
	}

	cmd := &Command{
		Descriptor: Descriptor{
			Name:            def.Name,
			Aliases:         def.Aliases,
			Description:     def.Description,
			Examples:        def.Examples,
			Tier:            tier,
			Args:            args,
			HideFromHelp:    def.HideFromHelp,
			PrivmsgOnly:     def.PrivmsgOnly,
			HomeChannelOnly: def.BotChannelOnly,
		},
		Source: path,
	}
	if err := checkCommand(&Command{Descriptor: cmd.Descriptor, Handler: h}); err != nil {
		return invalid("%v", err)
	}

	// Only definitions with an execute action answer Dispatcher.Invoke.
	if h.execute != nil {
		cmd.Handler = &executableTemplateHandler{h}
	} else {
		cmd.Handler = h
	}

	return Valid{Path: path, Command: cmd}
}

// Commands returns the commands of the Valid results.
func Commands(results []Validation) []*Command {
	out := make([]*Command, 0, len(results))
	for _, res := range results {
		if v, ok := res.(Valid); ok {
			out = append(out, v.Command)
		}
	}
	return out
}

func isDefinitionFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return (ext == ".yaml" || ext == ".yml") && !strings.HasPrefix(name, ".")
}

func normalizeDefault(t ArgType, v any) any {
	switch t {
	case ArgNumber:
		switch n := v.(type) {
		case int:
			return float64(n)
		case float64:
			return n
		case string:
			return coerce(ArgNumber, n)
		}
	case ArgBoolean:
		if b, ok := v.(bool); ok {
			return b
		}
		return truthy(v)
	case ArgString:
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}
	return v
}

type compiledAction struct {
	kind string
	tmpl *template.Template
}

func compileAction(name string, a *Action) (*compiledAction, error) {
	if a == nil {
		return nil, nil
	}
	kind := a.Type
	if kind == "" {
		kind = ActionReply
	}
	switch kind {
	case ActionReply, ActionActionReply, ActionSay, ActionActionSay:
	default:
		return nil, fmt.Errorf("unknown action type %q", a.Type)
	}
	if strings.TrimSpace(a.Text) == "" {
		return nil, fmt.Errorf("missing text")
	}
	tmpl, err := template.New(name).Option("missingkey=zero").Parse(a.Text)
	if err != nil {
		return nil, fmt.Errorf("parsing template: %w", err)
	}
	return &compiledAction{kind: kind, tmpl: tmpl}, nil
}

type templateHandler struct {
	responder *chat.Responder
	prefix    func() string
	run       *compiledAction
	execute   *compiledAction
}

func (h *templateHandler) Run(ctx context.Context, msg *chat.Message, params Params) error {
	action := h.run
	if action == nil {
		action = h.execute
	}
	return h.send(ctx, action, msg, params)
}

func (h *templateHandler) send(ctx context.Context, action *compiledAction, msg *chat.Message, params Params) error {
	var buf bytes.Buffer
	data := TemplateData{Message: msg, Params: params, Prefix: h.prefix()}
	if err := action.tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("rendering %s: %w", action.tmpl.Name(), err)
	}
	text := strings.TrimSpace(buf.String())
	if text == "" {
		return nil
	}

	switch action.kind {
	case ActionActionReply:
		return h.responder.ActionReply(ctx, msg, text)
	case ActionSay:
		return h.responder.Say(ctx, msg, text)
	case ActionActionSay:
		return h.responder.ActionSay(ctx, msg, text)
	default:
		return h.responder.Reply(ctx, msg, text)
	}
}

type executableTemplateHandler struct {
	*templateHandler
}

func (h *executableTemplateHandler) Execute(ctx context.Context, msg *chat.Message) error {
	return h.send(ctx, h.execute, msg, Params{})
}

// ReloadDir replaces every file-backed command in registry with the current
// contents of dir. Programmatic registrations stay in front.
func ReloadDir(registry *Registry, loader *Loader, dir string) ([]Validation, error) {
	results, err := loader.LoadDir(dir)
	if err != nil {
		return nil, err
	}
	if err := swapLoaded(registry, Commands(results)); err != nil {
		return nil, err
	}
	return results, nil
}

// swapLoaded replaces every file-backed command with loaded, keeping
// programmatic commands in front.
func swapLoaded(registry *Registry, loaded []*Command) error {
	return registry.Update(func(current []*Command) []*Command {
		next := make([]*Command, 0, len(current)+len(loaded))
		for _, cmd := range current {
			if cmd.Source == "" {
				next = append(next, cmd)
			}
		}
		return append(next, loaded...)
	})
}
