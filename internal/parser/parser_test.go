package parser

import "testing"

func TestResolveRoute(t *testing.T) {
	set := map[string]bool{"RUTA NORTE": true}

	if norm, ok := ResolveRoute("Ruta Norte", set); !ok || norm != "RUTA NORTE" {
		t.Fatalf("expected match RUTA NORTE, got %q ok=%v", norm, ok)
	}
	if _, ok := ResolveRoute("Ruta Sur", set); ok {
		t.Fatalf("expected no match for unknown route")
	}
}

func TestParseBodyHappyPath(t *testing.T) {
	body := "Cliente: Super Uno\n1 L - Leche - 1.20"
	clients, issues, ok := ParseBody(body)
	if !ok {
		t.Fatalf("expected success, issues=%+v", issues)
	}
	if len(clients) != 1 {
		t.Fatalf("expected 1 client, got %d", len(clients))
	}
	c := clients[0]
	if c.NameRaw != "Super Uno" {
		t.Fatalf("unexpected client name: %q", c.NameRaw)
	}
	if len(c.Lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(c.Lines))
	}
	line := c.Lines[0]
	if line.Quantity != 1.0 || line.UnitRaw != "L" || line.ProductRaw != "Leche" || line.Price != 1.20 {
		t.Fatalf("unexpected line: %+v", line)
	}
}

func TestParseBodyObservations(t *testing.T) {
	body := "Cliente: Super Uno\nObservaciones: entregar antes de las 10\n1 L - Leche - 1.20"
	clients, _, ok := ParseBody(body)
	if !ok || len(clients) != 1 {
		t.Fatalf("expected success with one client")
	}
	if clients[0].Observations != "entregar antes de las 10" {
		t.Fatalf("unexpected observations: %q", clients[0].Observations)
	}
}

func TestParseBodyClientWithoutNameIsHardError(t *testing.T) {
	body := "Cliente: \n1 L - Leche - 1.20"
	_, issues, ok := ParseBody(body)
	if ok {
		t.Fatalf("expected failure on client without name")
	}
	found := false
	for _, iss := range issues {
		if iss.Level == LevelError && iss.Message == "client without name" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected 'client without name' error, got %+v", issues)
	}
}

func TestParseBodyProductLineWithNoClientIsWarning(t *testing.T) {
	body := "1 L - Leche - 1.20\nCliente: Super Uno\n1 L - Pan - 2.00"
	clients, issues, ok := ParseBody(body)
	if !ok {
		t.Fatalf("expected overall success, issues=%+v", issues)
	}
	if len(clients) != 1 || len(clients[0].Lines) != 1 {
		t.Fatalf("expected 1 client with 1 line, got %+v", clients)
	}
	found := false
	for _, iss := range issues {
		if iss.Message == "product line with no client" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected 'product line with no client' warning, got %+v", issues)
	}
}

func TestParseBodyClientWithoutProductsIsRetainedWithWarning(t *testing.T) {
	body := "Cliente: Super Uno\nCliente: Super Dos\n1 L - Leche - 1.20"
	clients, issues, ok := ParseBody(body)
	if !ok {
		t.Fatalf("expected success, issues=%+v", issues)
	}
	if len(clients) != 2 {
		t.Fatalf("expected 2 clients retained, got %d", len(clients))
	}
	if len(clients[0].Lines) != 0 {
		t.Fatalf("expected first client to have zero lines")
	}
	found := false
	for _, iss := range issues {
		if iss.Message == "client without products" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected 'client without products' warning")
	}
}

func TestParseBodyCommaDecimalSeparator(t *testing.T) {
	body := "Cliente: Super Uno\n2,5 KG - Arroz - 3,75"
	clients, _, ok := ParseBody(body)
	if !ok || len(clients) != 1 || len(clients[0].Lines) != 1 {
		t.Fatalf("expected success with one line")
	}
	line := clients[0].Lines[0]
	if line.Quantity != 2.5 || line.Price != 3.75 {
		t.Fatalf("unexpected decimal parse: %+v", line)
	}
}

func TestParseBodyNoClientsIsFailure(t *testing.T) {
	_, _, ok := ParseBody("just some random text\nwith no markers")
	if ok {
		t.Fatalf("expected failure when no client was ever opened")
	}
}
