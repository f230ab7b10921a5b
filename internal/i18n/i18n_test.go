package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	loc := NewLocalizer(lang)
	return WithLocalizer(context.Background(), loc)
}

func TestTranslateSpanish(t *testing.T) {
	ctx := initLang(t, "es")

	got := T(ctx, "ErrNotFound")
	if got != "El recurso solicitado no existe." {
		t.Errorf("T(ErrNotFound) = %q", got)
	}
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "ErrEvaluationHasQuestions")
	if got != "The evaluation still has questions." {
		t.Errorf("T(ErrEvaluationHasQuestions) = %q", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	tests := []struct {
		count int
		want  string
	}{
		{1, "Imported an evaluation with 1 question."},
		{5, "Imported an evaluation with 5 questions."},
	}
	for _, tt := range tests {
		if got := Tp(ctx, "ImportedQuestions", tt.count); got != tt.want {
			t.Errorf("Tp(ImportedQuestions, %d) = %q, want %q", tt.count, got, tt.want)
		}
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "es")

	got := Td(ctx, "ErrInvalidID", map[string]any{"Value": "abc"})
	if got != "Identificador inválido: abc." {
		t.Errorf("Td(ErrInvalidID) = %q", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "NonExistentKey")
	if got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestInitRejectsBadTag(t *testing.T) {
	if err := Init("not a tag!"); err == nil {
		t.Fatal("expected error for invalid language tag")
	}
}

func TestMiddlewareLanguageSelection(t *testing.T) {
	if err := Init("es"); err != nil {
		t.Fatalf("Init: %v", err)
	}

	var got string
	h := Middleware("es")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = T(r.Context(), "ErrInternal")
	}))

	tests := []struct {
		name   string
		target string
		accept string
		want   string
	}{
		{"fallback", "/", "", "Error interno."},
		{"accept header", "/", "en-US,en;q=0.9", "Internal error."},
		{"query wins", "/?lang=es", "en", "Error interno."},
		{"unknown language", "/", "fr", "Error interno."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.accept != "" {
				req.Header.Set("Accept-Language", tt.accept)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
