package question

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/eduprompt/eduprompt/pkg/llms"
)

// Complexity levels accepted for question generation.
const (
	ComplexityFacil   = "facil"
	ComplexityMedio   = "medio"
	ComplexityDificil = "dificil"
)

// Length levels accepted for question generation.
const (
	LengthCurta = "curta"
	LengthMedia = "media"
	LengthLonga = "longa"
)

// Token budgets for generation. Long supporting material needs more room.
const (
	maxTokensDefault = 3000
	maxTokensLonga   = 4500
)

const generationTemperature = 0.6

// systemPrompt overrides the gateway default: the synthesizer wants JSON
// only, no prose.
const systemPrompt = "Você é um assistente que gera questões objetivas em JSON válido, sem markdown extra."

// Params are the pedagogical inputs for one question.
type Params struct {
	Materia       string
	Descritor     string
	Turma         string
	Complexidade  string
	Tamanho       string
	InfoAdicional string
}

// ValidationError reports a missing required field.
type ValidationError struct {
	Field string
}

// Error returns the validation error message.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("campo obrigatório: %s", e.Field)
}

// Validate checks that the required fields are present and non-blank.
func (p *Params) Validate() error {
	if strings.TrimSpace(p.Materia) == "" {
		return &ValidationError{Field: "materia"}
	}
	if strings.TrimSpace(p.Descritor) == "" {
		return &ValidationError{Field: "descritor"}
	}
	if strings.TrimSpace(p.Turma) == "" {
		return &ValidationError{Field: "turma"}
	}
	return nil
}

// Normalize trims fields and coerces complexity and length to their
// defaults when absent or unknown.
func (p *Params) Normalize() {
	p.Materia = strings.TrimSpace(p.Materia)
	p.Descritor = strings.TrimSpace(p.Descritor)
	p.Turma = strings.TrimSpace(p.Turma)
	p.InfoAdicional = strings.TrimSpace(p.InfoAdicional)

	switch p.Complexidade {
	case ComplexityFacil, ComplexityMedio, ComplexityDificil:
	default:
		p.Complexidade = ComplexityMedio
	}

	switch p.Tamanho {
	case LengthCurta, LengthMedia, LengthLonga:
	default:
		p.Tamanho = LengthMedia
	}
}

// Generator produces text from a prompt. Satisfied by *llms.Gateway.
type Generator interface {
	Execute(ctx context.Context, prompt string, opts llms.Options) (*llms.Result, error)
}

// Synthesizer turns pedagogical parameters into one well-formed Question,
// tolerating unreliable LLM output: gateway failures and unparseable
// responses degrade to a deterministic fallback payload instead of errors.
type Synthesizer struct {
	generator Generator
}

// NewSynthesizer creates a synthesizer on top of a text generator.
func NewSynthesizer(generator Generator) *Synthesizer {
	return &Synthesizer{generator: generator}
}

// Generate builds the prompt, invokes the generator, and normalizes the
// output. The only error it returns is parameter validation; every
// generation-side failure yields the fallback payload so callers never
// need to special-case "no question".
func (s *Synthesizer) Generate(ctx context.Context, p Params) (*Question, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	p.Normalize()

	maxTokens := maxTokensDefault
	if p.Tamanho == LengthLonga {
		maxTokens = maxTokensLonga
	}

	temperature := generationTemperature
	result, err := s.generator.Execute(ctx, buildPrompt(p), llms.Options{
		Model:        llms.ModelBase,
		MaxTokens:    maxTokens,
		Temperature:  &temperature,
		SystemPrompt: systemPrompt,
	})
	if err != nil || result == nil || strings.TrimSpace(result.Text) == "" {
		slog.Warn("Question generation failed, using fallback payload",
			"materia", p.Materia, "descritor", p.Descritor, "error", err)
		return fallbackQuestion(p), nil
	}

	parsed, ok := extractJSON(result.Text)
	if !ok {
		slog.Warn("Question generation returned unparseable JSON, using fallback payload",
			"materia", p.Materia, "descritor", p.Descritor)
		return fallbackQuestion(p), nil
	}

	return normalize(parsed), nil
}

// complexityInstructions maps each difficulty to its instruction block.
var complexityInstructions = map[string]string{
	ComplexityFacil: "Nível de dificuldade: FÁCIL. A questão deve exigir aplicação direta do descritor, " +
		"com leitura objetiva do material de apoio e alternativas incorretas claramente distintas da correta.",
	ComplexityMedio: "Nível de dificuldade: MÉDIO. A questão deve exigir interpretação do material de apoio, " +
		"com alternativas incorretas plausíveis construídas a partir de erros comuns dos alunos.",
	ComplexityDificil: "Nível de dificuldade: DIFÍCIL. A questão deve exigir análise e articulação de mais de " +
		"uma informação do material de apoio, com alternativas incorretas que refletem erros conceituais sutis.",
}

// lengthInstructions maps each length to its instruction block.
var lengthInstructions = map[string]string{
	LengthCurta: "Tamanho: CURTA. O suporte deve ser breve (duas a quatro linhas) e o enunciado direto.",
	LengthMedia: "Tamanho: MÉDIA. O suporte deve ter em torno de um parágrafo de material.",
	LengthLonga: "Tamanho: LONGA. O suporte deve ser extenso: um texto completo, tabela ou conjunto de dados " +
		"suficiente para sustentar a análise pedida.",
}

// buildPrompt assembles the single natural-language instruction: role
// framing, context fields, difficulty and length blocks, optional notes,
// and the explicit output contract with the fixed JSON schema.
func buildPrompt(p Params) string {
	var b strings.Builder

	b.WriteString("Você é um professor experiente criando uma questão objetiva de múltipla escolha para o ensino médio público.\n\n")

	b.WriteString("Contexto:\n")
	fmt.Fprintf(&b, "- Matéria: %s\n", p.Materia)
	fmt.Fprintf(&b, "- Descritor/habilidade: %s\n", p.Descritor)
	fmt.Fprintf(&b, "- Turma: %s\n", p.Turma)
	fmt.Fprintf(&b, "- %s\n", complexityInstructions[p.Complexidade])
	fmt.Fprintf(&b, "- %s\n", lengthInstructions[p.Tamanho])
	if p.InfoAdicional != "" {
		fmt.Fprintf(&b, "\nInformações adicionais para a questão: %s\n", p.InfoAdicional)
	}

	b.WriteString(`
Gere uma questão com EXATAMENTE a estrutura abaixo. Responda APENAS com um bloco JSON válido, sem texto antes ou depois.

Os três campos de texto têm papéis distintos:
- "suporte": o material em si sobre o qual a questão trata (a carta, o trecho, a fórmula, a tabela), e NÃO uma descrição dele;
- "enunciado": a frase que apresenta e contextualiza esse material;
- "comando": a instrução dada ao aluno (ex.: 'Assinale a alternativa correta.', 'Com base no texto, ...').

Estrutura obrigatória do JSON:
{
  "enunciado": "texto do enunciado da questão (uma ou mais frases claras)",
  "suporte": "o conteúdo literal de apoio (trecho, tabela, fórmula, gráfico descrito, etc.)",
  "comando": "frase que indica o que o aluno deve fazer",
  "alternativas": {
    "A": "texto da alternativa A",
    "B": "texto da alternativa B",
    "C": "texto da alternativa C",
    "D": "texto da alternativa D",
    "E": "texto da alternativa E"
  },
  "gabarito": "uma única letra: A, B, C, D ou E",
  "avaliacaoAlternativas": {
    "A": "breve explicação: por que está correta ou por que está errada (se o aluno marcar A)",
    "B": "breve explicação para a alternativa B",
    "C": "breve explicação para a alternativa C",
    "D": "breve explicação para a alternativa D",
    "E": "breve explicação para a alternativa E"
  }
}

Regras: alternativas devem ser plausíveis; apenas uma correta; linguagem adequada ao ensino médio; gabarito deve ser uma letra maiúscula.`)

	return b.String()
}
