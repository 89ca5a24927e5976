package directive

import (
	"reflect"
	"testing"
)

func TestExtractNoMarker(t *testing.T) {
	texts := []string{
		"",
		"Olá, em que posso ajudar?",
		"A classificação ficou {\"tipo\": \"exemplo\"} sem marcador.",
		"Multi\nline\ntext without any directive",
	}
	for _, text := range texts {
		d, clean := Extract(text)
		if d != nil {
			t.Errorf("Expected no directive for %q, got %+v", text, d)
		}
		if clean != text {
			t.Errorf("Expected text unchanged for %q, got %q", text, clean)
		}
	}
}

func TestExtractRoundTrip(t *testing.T) {
	text := "Vou pesquisar.\nACTION: {\"tool\": \"web_search\", \"args\": {\"query\": \"resultado jogo\"}}"
	d, clean := Extract(text)
	if d == nil {
		t.Fatalf("Expected a directive")
	}
	if d.Tool != "web_search" {
		t.Errorf("Expected tool web_search, got %s", d.Tool)
	}
	if d.Args["query"] != "resultado jogo" {
		t.Errorf("Expected query arg, got %v", d.Args)
	}
	if clean != "Vou pesquisar." {
		t.Errorf("Expected clean text %q, got %q", "Vou pesquisar.", clean)
	}
}

func TestExtractCaseInsensitiveMarker(t *testing.T) {
	d, clean := Extract("Ok.\naction: {\"tool\": \"save_note\", \"args\": {\"text\": \"leite\"}}")
	if d == nil || d.Tool != "save_note" {
		t.Fatalf("Expected save_note directive, got %+v", d)
	}
	if clean != "Ok." {
		t.Errorf("Expected clean text Ok., got %q", clean)
	}
}

func TestExtractLocalizedMarker(t *testing.T) {
	d, clean := Extract("Claro.\nAÇÃO: {\"tool\": \"show_shopping_list\", \"args\": {}}")
	if d == nil {
		t.Fatalf("Expected a directive for localized marker")
	}
	if d.Tool != "show_shopping_list" {
		t.Errorf("Expected show_shopping_list, got %s", d.Tool)
	}
	if len(d.Args) != 0 {
		t.Errorf("Expected empty args, got %v", d.Args)
	}
	if clean != "Claro." {
		t.Errorf("Expected clean text Claro., got %q", clean)
	}

	// Lowercase localized marker must also match.
	d, _ = Extract("ação: {\"tool\": \"x\", \"args\": {}}")
	if d == nil || d.Tool != "x" {
		t.Errorf("Expected directive for lowercase localized marker, got %+v", d)
	}
}

func TestExtractDoubledBraces(t *testing.T) {
	d, _ := Extract("Ok.\nACTION: {{\"tool\": \"x\", \"args\": {{}}}}")
	if d == nil {
		t.Fatalf("Expected a directive after brace normalization")
	}
	if d.Tool != "x" {
		t.Errorf("Expected tool x, got %s", d.Tool)
	}
	if len(d.Args) != 0 {
		t.Errorf("Expected empty args, got %v", d.Args)
	}
}

func TestExtractBracesInsideStringValue(t *testing.T) {
	text := "A executar.\nACTION: {\"tool\": \"terminal_command\", \"args\": {\"command\": \"awk '{print $1}' /tmp/f\"}}"
	d, clean := Extract(text)
	if d == nil {
		t.Fatalf("Expected a directive")
	}
	if d.Args["command"] != "awk '{print $1}' /tmp/f" {
		t.Errorf("Brace-balance scan corrupted the command arg: %v", d.Args["command"])
	}
	if clean != "A executar." {
		t.Errorf("Expected clean text, got %q", clean)
	}
}

func TestExtractEscapedQuoteInsideString(t *testing.T) {
	text := "ACTION: {\"tool\": \"save_note\", \"args\": {\"text\": \"ele disse \\\"olá {mundo}\\\" ontem\"}}"
	d, _ := Extract(text)
	if d == nil {
		t.Fatalf("Expected a directive")
	}
	if d.Args["text"] != "ele disse \"olá {mundo}\" ontem" {
		t.Errorf("Escape handling broken: %v", d.Args["text"])
	}
}

func TestExtractNestedArgs(t *testing.T) {
	text := "Vou ligar o ar condicionado.\nACTION: {\"tool\": \"homeassistant_call_service\", \"args\": {\"domain\": \"climate\", \"service\": \"set_temperature\", \"data\": {\"entity_id\": \"climate.quarto\", \"temperature\": 22, \"hvac_mode\": \"heat\"}}}"
	d, _ := Extract(text)
	if d == nil {
		t.Fatalf("Expected a directive")
	}
	data, ok := d.Args["data"].(map[string]any)
	if !ok {
		t.Fatalf("Expected nested data object, got %T", d.Args["data"])
	}
	want := map[string]any{"entity_id": "climate.quarto", "temperature": float64(22), "hvac_mode": "heat"}
	if !reflect.DeepEqual(data, want) {
		t.Errorf("Nested args mismatch: got %v, want %v", data, want)
	}
}

func TestExtractMalformedPayloadStillStripped(t *testing.T) {
	text := "Vou tentar.\nACTION: {\"tool\": \"web_search\", \"args\": "
	d, clean := Extract(text)
	if d != nil {
		t.Errorf("Expected no directive for truncated payload, got %+v", d)
	}
	if clean != "Vou tentar." {
		t.Errorf("Malformed directive leaked into clean text: %q", clean)
	}
}

func TestExtractMissingToolField(t *testing.T) {
	d, clean := Extract("Ok.\nACTION: {\"args\": {\"query\": \"x\"}}")
	if d != nil {
		t.Errorf("Expected no directive when tool field is absent, got %+v", d)
	}
	if clean != "Ok." {
		t.Errorf("Expected marker stripped, got %q", clean)
	}
}

func TestExtractFirstMarkerWins(t *testing.T) {
	text := "Primeiro.\nACTION: {\"tool\": \"save_note\", \"args\": {\"text\": \"a\"}}\nACTION: {\"tool\": \"web_search\", \"args\": {\"query\": \"b\"}}"
	d, clean := Extract(text)
	if d == nil || d.Tool != "save_note" {
		t.Fatalf("Expected the first marker's directive, got %+v", d)
	}
	if clean != "Primeiro." {
		t.Errorf("Expected everything from the first marker stripped, got %q", clean)
	}
}

func TestExtractWhitespaceTolerance(t *testing.T) {
	d, clean := Extract("Ok.\n  ACTION:    \n  {\"tool\": \"x\", \"args\": {}}   \n")
	if d == nil || d.Tool != "x" {
		t.Fatalf("Expected directive despite surrounding whitespace, got %+v", d)
	}
	if clean != "Ok." {
		t.Errorf("Expected trimmed clean text, got %q", clean)
	}
}

func TestHasMarker(t *testing.T) {
	if HasMarker("nothing here") {
		t.Errorf("Expected no marker")
	}
	if !HasMarker("text\nACTION: {}") {
		t.Errorf("Expected marker to be detected")
	}
}
