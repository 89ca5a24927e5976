package tool

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jarvas-assistant/jarvas/search"
)

// Collaborator interfaces for the built-in tools. The registry depends only
// on these contracts; persistence and home-automation details live with the
// caller.

// ShoppingList stores per-user shopping items.
type ShoppingList interface {
	Add(ctx context.Context, userID, item string) error
	Items(ctx context.Context, userID string) ([]string, error)
}

// Agenda stores per-user calendar events.
type Agenda interface {
	AddEvent(ctx context.Context, userID, title string, when time.Time) error
}

// Notes stores free-form user notes.
type Notes interface {
	Save(ctx context.Context, userID, text string) error
}

// EntityState is one home-automation entity snapshot.
type EntityState struct {
	EntityID   string         `json:"entity_id"`
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// HomeControl talks to the home-automation hub.
type HomeControl interface {
	States(ctx context.Context) ([]EntityState, error)
	CallService(ctx context.Context, domain, service string, data map[string]any) error
}

// TerminalRunner executes a shell command on the host and returns its output.
type TerminalRunner interface {
	Run(ctx context.Context, command string) (string, error)
}

// Searcher is the slice of the search client the deferred web_search tool
// needs.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults, maxRetries int) []search.Result
}

// Builtins carries the collaborators for the built-in tool set. Nil fields
// skip the corresponding tools.
type Builtins struct {
	Shopping ShoppingList
	Agenda   Agenda
	Notes    Notes
	Home     HomeControl
	Terminal TerminalRunner
	Searcher Searcher
}

// Accepted layouts for agenda event times, tried in order.
var eventLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
}

// RegisterBuiltins wires the built-in tools into a registry.
func RegisterBuiltins(r *Registry, deps Builtins) error {
	var tools []*Tool

	if deps.Shopping != nil {
		tools = append(tools,
			&Tool{
				Name:        "add_shopping_item",
				Description: "Adiciona um item à lista de compras",
				Parameters: []Parameter{
					{Name: "item", Type: "string", Description: "Item a adicionar", Required: true},
				},
				Handler: func(ctx context.Context, args map[string]any, user UserContext) (*DispatchResult, error) {
					item, err := stringArg(args, "item")
					if err != nil {
						return nil, err
					}
					if err := deps.Shopping.Add(ctx, user.UserID, item); err != nil {
						return nil, fmt.Errorf("não consegui adicionar o item: %w", err)
					}
					return &DispatchResult{
						Success: true,
						Message: fmt.Sprintf("Adicionei %q à lista de compras.", item),
					}, nil
				},
			},
			&Tool{
				Name:        "show_shopping_list",
				Description: "Mostra a lista de compras atual",
				Handler: func(ctx context.Context, _ map[string]any, user UserContext) (*DispatchResult, error) {
					items, err := deps.Shopping.Items(ctx, user.UserID)
					if err != nil {
						return nil, fmt.Errorf("não consegui ler a lista de compras: %w", err)
					}
					if len(items) == 0 {
						return &DispatchResult{Success: true, Message: "A lista de compras está vazia."}, nil
					}
					return &DispatchResult{
						Success: true,
						Message: fmt.Sprintf("Tens %d itens na lista de compras.", len(items)),
						Data:    map[string]any{"items": items},
					}, nil
				},
			},
		)
	}

	if deps.Agenda != nil {
		tools = append(tools, &Tool{
			Name:        "add_agenda_event",
			Description: "Adiciona um evento à agenda",
			Parameters: []Parameter{
				{Name: "title", Type: "string", Description: "Título do evento", Required: true},
				{Name: "when", Type: "string", Description: "Data/hora do evento", Required: true},
			},
			Handler: func(ctx context.Context, args map[string]any, user UserContext) (*DispatchResult, error) {
				title, err := stringArg(args, "title")
				if err != nil {
					return nil, err
				}
				raw, err := stringArg(args, "when")
				if err != nil {
					return nil, err
				}
				when, err := parseEventTime(raw)
				if err != nil {
					return Failure("Não percebi a data %q.", raw), nil
				}
				if err := deps.Agenda.AddEvent(ctx, user.UserID, title, when); err != nil {
					return nil, fmt.Errorf("não consegui guardar o evento: %w", err)
				}
				return &DispatchResult{
					Success: true,
					Message: fmt.Sprintf("Evento %q marcado para %s.", title, when.Format("2006-01-02 15:04")),
				}, nil
			},
		})
	}

	if deps.Notes != nil {
		tools = append(tools, &Tool{
			Name:        "save_note",
			Description: "Guarda uma nota",
			Parameters: []Parameter{
				{Name: "text", Type: "string", Description: "Conteúdo da nota", Required: true},
			},
			Handler: func(ctx context.Context, args map[string]any, user UserContext) (*DispatchResult, error) {
				text, err := stringArg(args, "text")
				if err != nil {
					return nil, err
				}
				if err := deps.Notes.Save(ctx, user.UserID, text); err != nil {
					return nil, fmt.Errorf("não consegui guardar a nota: %w", err)
				}
				return &DispatchResult{Success: true, Message: "Nota guardada."}, nil
			},
		})
	}

	if deps.Home != nil {
		tools = append(tools,
			&Tool{
				Name:        "homeassistant_get_states",
				Description: "Lê o estado atual dos dispositivos da casa",
				Handler: func(ctx context.Context, _ map[string]any, _ UserContext) (*DispatchResult, error) {
					states, err := deps.Home.States(ctx)
					if err != nil {
						return nil, fmt.Errorf("não consegui contactar a casa: %w", err)
					}
					return &DispatchResult{
						Success: true,
						Message: fmt.Sprintf("Encontrei %d dispositivos.", len(states)),
						Data:    map[string]any{"states": states},
					}, nil
				},
			},
			&Tool{
				Name:        "homeassistant_call_service",
				Description: "Executa uma ação num dispositivo da casa",
				Parameters: []Parameter{
					{Name: "domain", Type: "string", Description: "Domínio do serviço", Required: true},
					{Name: "service", Type: "string", Description: "Serviço a chamar", Required: true},
					{Name: "data", Type: "object", Description: "Dados do serviço", Required: false},
				},
				Handler: func(ctx context.Context, args map[string]any, _ UserContext) (*DispatchResult, error) {
					domain, err := stringArg(args, "domain")
					if err != nil {
						return nil, err
					}
					service, err := stringArg(args, "service")
					if err != nil {
						return nil, err
					}
					data, _ := args["data"].(map[string]any)
					if err := deps.Home.CallService(ctx, domain, service, data); err != nil {
						return nil, fmt.Errorf("não consegui executar %s.%s: %w", domain, service, err)
					}
					return &DispatchResult{
						Success: true,
						Message: fmt.Sprintf("Executei %s.%s.", domain, service),
					}, nil
				},
			},
		)
	}

	if deps.Terminal != nil {
		tools = append(tools, &Tool{
			Name:        "terminal_command",
			Description: "Executa um comando no terminal do servidor",
			Parameters: []Parameter{
				{Name: "command", Type: "string", Description: "Comando a executar", Required: true},
			},
			Handler: func(ctx context.Context, args map[string]any, _ UserContext) (*DispatchResult, error) {
				command, err := stringArg(args, "command")
				if err != nil {
					return nil, err
				}
				output, err := deps.Terminal.Run(ctx, command)
				if err != nil {
					return Failure("O comando falhou: %v", err), nil
				}
				return &DispatchResult{
					Success: true,
					Message: "Comando executado.",
					Data:    map[string]any{"output": output},
				}, nil
			},
		})
	}

	if deps.Searcher != nil {
		tools = append(tools, &Tool{
			Name:        "web_search",
			Description: "Pesquisa informação atual na web",
			Deferred:    true,
			Parameters: []Parameter{
				{Name: "query", Type: "string", Description: "Texto a pesquisar", Required: true},
			},
			Handler: func(ctx context.Context, args map[string]any, _ UserContext) (*DispatchResult, error) {
				query, err := stringArg(args, "query")
				if err != nil {
					return nil, err
				}
				results := deps.Searcher.Search(ctx, query, search.DefaultMaxResults, search.DefaultMaxRetries)
				if len(results) == 0 {
					return &DispatchResult{Success: true, Message: "Não encontrei resultados."}, nil
				}
				return &DispatchResult{
					Success: true,
					Message: fmt.Sprintf("Encontrei %d resultados.", len(results)),
					Data:    map[string]any{"results": results},
				}, nil
			},
		})
	}

	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

func stringArg(args map[string]any, name string) (string, error) {
	raw, ok := args[name]
	if !ok {
		return "", fmt.Errorf("missing required parameter: %s", name)
	}
	s, ok := raw.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("parameter %s must be a non-empty string", name)
	}
	return strings.TrimSpace(s), nil
}

func parseEventTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range eventLayouts {
		if when, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return when, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", raw)
}
