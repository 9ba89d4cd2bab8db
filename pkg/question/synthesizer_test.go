package question

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduprompt/eduprompt/pkg/llms"
)

// fakeGenerator records the last Execute call and returns a canned reply.
type fakeGenerator struct {
	text   string
	err    error
	prompt string
	opts   llms.Options
	calls  int
}

func (f *fakeGenerator) Execute(ctx context.Context, prompt string, opts llms.Options) (*llms.Result, error) {
	f.calls++
	f.prompt = prompt
	f.opts = opts
	if f.err != nil {
		return nil, f.err
	}
	return &llms.Result{Text: f.text}, nil
}

func validParams() Params {
	return Params{Materia: "Português", Descritor: "D1", Turma: "1ª série"}
}

func TestSynthesizer_ValidationFailsBeforeGeneration(t *testing.T) {
	gen := &fakeGenerator{}
	s := NewSynthesizer(gen)

	tests := []struct {
		field  string
		params Params
	}{
		{"materia", Params{Descritor: "D1", Turma: "T"}},
		{"descritor", Params{Materia: "M", Turma: "T"}},
		{"turma", Params{Materia: "M", Descritor: "D1", Turma: "   "}},
	}
	for _, tt := range tests {
		_, err := s.Generate(context.Background(), tt.params)
		require.Error(t, err)

		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, tt.field, verr.Field)
	}
	assert.Equal(t, 0, gen.calls, "validation failures must not reach the generator")
}

func TestSynthesizer_WellFormedOutput(t *testing.T) {
	gen := &fakeGenerator{text: "```json\n" + `{
		"enunciado": "Leia o trecho abaixo.",
		"suporte": "Era uma vez...",
		"comando": "Assinale a alternativa correta.",
		"alternativas": {"A": "a", "B": "b", "C": "c", "D": "d", "E": "e"},
		"gabarito": "C",
		"avaliacaoAlternativas": {"A": "ea", "B": "eb", "C": "ec", "D": "ed", "E": "ee"}
	}` + "\n```"}
	s := NewSynthesizer(gen)

	q, err := s.Generate(context.Background(), validParams())
	require.NoError(t, err)

	assert.Equal(t, "Leia o trecho abaixo.", q.Enunciado)
	assert.Equal(t, "Era uma vez...", q.Suporte)
	assert.Equal(t, "C", q.Gabarito)
	assert.Equal(t, "c", q.Alternativas["C"])
	assert.Equal(t, "ec", q.AvaliacaoAlternativas["C"])
}

func TestSynthesizer_GatewayFailureDegradesToFallback(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("upstream down")}
	s := NewSynthesizer(gen)

	q, err := s.Generate(context.Background(), validParams())
	require.NoError(t, err, "generation failures must not surface as errors")
	assert.Contains(t, q.Enunciado, "Português")
	assert.Contains(t, q.Enunciado, "D1")
	assert.Equal(t, "A", q.Gabarito)
}

func TestSynthesizer_EmptyTextDegradesToFallback(t *testing.T) {
	gen := &fakeGenerator{text: "   "}
	s := NewSynthesizer(gen)

	q, err := s.Generate(context.Background(), validParams())
	require.NoError(t, err)
	assert.Equal(t, FallbackComando, q.Comando)
}

func TestSynthesizer_UnparseableTextDegradesToFallback(t *testing.T) {
	gen := &fakeGenerator{text: "Desculpe, não consegui gerar a questão em JSON."}
	s := NewSynthesizer(gen)

	q, err := s.Generate(context.Background(), validParams())
	require.NoError(t, err)
	assert.Equal(t, "A", q.Gabarito)
	assert.Contains(t, q.Enunciado, "Não foi possível gerar o enunciado.")
}

func TestSynthesizer_GenerationOptions(t *testing.T) {
	gen := &fakeGenerator{text: "{}"}
	s := NewSynthesizer(gen)

	_, err := s.Generate(context.Background(), validParams())
	require.NoError(t, err)

	assert.Equal(t, llms.ModelBase, gen.opts.Model)
	assert.Equal(t, maxTokensDefault, gen.opts.MaxTokens)
	require.NotNil(t, gen.opts.Temperature)
	assert.Equal(t, generationTemperature, *gen.opts.Temperature)
	assert.Equal(t, systemPrompt, gen.opts.SystemPrompt)
}

func TestSynthesizer_LongaRaisesTokenBudget(t *testing.T) {
	gen := &fakeGenerator{text: "{}"}
	s := NewSynthesizer(gen)

	p := validParams()
	p.Tamanho = LengthLonga
	_, err := s.Generate(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, maxTokensLonga, gen.opts.MaxTokens)
}

func TestBuildPrompt(t *testing.T) {
	p := Params{
		Materia:       "História",
		Descritor:     "D12",
		Turma:         "3ª série",
		Complexidade:  ComplexityDificil,
		Tamanho:       LengthCurta,
		InfoAdicional: "usar a Revolução Industrial como tema",
	}

	prompt := buildPrompt(p)

	assert.Contains(t, prompt, "História")
	assert.Contains(t, prompt, "D12")
	assert.Contains(t, prompt, "3ª série")
	assert.Contains(t, prompt, complexityInstructions[ComplexityDificil])
	assert.Contains(t, prompt, lengthInstructions[LengthCurta])
	assert.Contains(t, prompt, "Revolução Industrial")
	assert.Contains(t, prompt, `"avaliacaoAlternativas"`)
	assert.Contains(t, prompt, "APENAS com um bloco JSON")
}

func TestBuildPrompt_OmitsEmptyInfoAdicional(t *testing.T) {
	p := validParams()
	p.Complexidade = ComplexityMedio
	p.Tamanho = LengthMedia

	prompt := buildPrompt(p)
	assert.False(t, strings.Contains(prompt, "Informações adicionais"))
}

func TestParamsNormalize_CoercesUnknownLevels(t *testing.T) {
	p := Params{
		Materia:      "  M  ",
		Descritor:    "D",
		Turma:        "T",
		Complexidade: "impossivel",
		Tamanho:      "gigante",
	}
	p.Normalize()

	assert.Equal(t, "M", p.Materia)
	assert.Equal(t, ComplexityMedio, p.Complexidade)
	assert.Equal(t, LengthMedia, p.Tamanho)
}
