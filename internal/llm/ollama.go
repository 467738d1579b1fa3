package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"paper-citations-rag/internal/models"

	"github.com/ollama/ollama/api"
	"github.com/ollama/ollama/envconfig"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// SystemPrompt tells the model to answer from the numbered passages and to
// mark every sourced phrase with a closed <CIT> tag.
const SystemPrompt = `You are a research assistant answering questions about academic papers.

Answer the question using ONLY the numbered chunks you are given. Be clear and concise.

Whenever part of your answer relies on a chunk, wrap that part of your answer in a citation tag of exactly this form:
  <CIT chunk_id='N' sentences='X-Y'>the part of your answer supported by the chunk</CIT>

Rules:
- N is the number of the chunk, counting from 0.
- X-Y is the range of sentences in that chunk that support the claim, counting from 1. Write X-X for one sentence.
- The text inside the tag is your own wording, not a quote from the chunk.
- Tag only the phrases that depend on a source. Introductions and your own synthesis stay untagged.
- Cite several chunks when the answer draws on several.

Example:
Prior work shows that <CIT chunk_id='1' sentences='2-4'>larger training sets improve model accuracy</CIT>, while <CIT chunk_id='3' sentences='1-1'>pretraining shortens fine-tuning</CIT>.`

// OllamaLLM handles interactions with the Ollama LLM API
type OllamaLLM struct {
	Client      *api.Client
	Model       string
	Temperature float64
	NumPredict  int
}

// NewOllamaLLM creates a new Ollama LLM client. An empty host falls back to
// OLLAMA_HOST.
func NewOllamaLLM(host string, model string) (*OllamaLLM, error) {
	client, err := newClient(host)
	if err != nil {
		return nil, err
	}

	return &OllamaLLM{
		Client:      client,
		Model:       model,
		Temperature: 0.3,
		NumPredict:  2048,
	}, nil
}

func newClient(host string) (*api.Client, error) {
	base := envconfig.Host()
	if host != "" {
		u, err := url.Parse(host)
		if err != nil {
			return nil, eris.Wrapf(err, "llm: parse host %q", host)
		}
		base = u
	}
	return api.NewClient(base, http.DefaultClient), nil
}

// GeneratePrompt lists the passages by their position, which is the chunk_id
// the model cites, followed by the question.
func (o *OllamaLLM) GeneratePrompt(question string, passages []models.Passage) string {
	var b strings.Builder

	for i, p := range passages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[Chunk %d] (from \"%s\")\n%s", i, p.DocumentName, p.Content)
	}

	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)

	return b.String()
}

// GenerateResponse streams a completion for prompt and returns the full text
func (o *OllamaLLM) GenerateResponse(ctx context.Context, prompt string) (string, error) {
	req := api.GenerateRequest{
		Model:  o.Model,
		System: SystemPrompt,
		Prompt: prompt,
		Options: map[string]interface{}{
			"temperature": o.Temperature,
			"num_predict": o.NumPredict,
		},
	}

	var responseBuilder strings.Builder

	err := o.Client.Generate(ctx, &req, func(resp api.GenerateResponse) error {
		_, err := responseBuilder.WriteString(resp.Response)
		return err
	})
	if err != nil {
		return "", eris.Wrap(err, "llm: generate")
	}

	return responseBuilder.String(), nil
}

// Answer returns the raw, tagged answer to question
func (o *OllamaLLM) Answer(ctx context.Context, question string, passages []models.Passage) (string, error) {
	prompt := o.GeneratePrompt(question, passages)

	answer, err := o.GenerateResponse(ctx, prompt)
	if err != nil {
		return "", err
	}

	zap.L().Debug("llm: answer generated",
		zap.String("model", o.Model),
		zap.Int("passages", len(passages)),
		zap.Int("answer_len", len(answer)),
	)
	return answer, nil
}
