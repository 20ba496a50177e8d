package analysis

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/genai"
)

const geminiPrompt = `Tu es un expert en vérification de tickets de caisse.
Analyse l'image de ce ticket et réponds UNIQUEMENT avec un objet JSON de la forme :
{
  "merchant_name": "nom du commerçant",
  "transaction_date": "YYYY-MM-DD",
  "total_amount": 0.00,
  "items": [{"name": "article", "quantity": 1, "unit_price": 0.00, "total_price": 0.00}],
  "is_authentic": true,
  "confidence_score": 0,
  "suspicious_elements": ["élément suspect"],
  "analysis": "explication courte en français"
}
confidence_score est un entier entre 0 et 100. Utilise null pour une valeur illisible.
Signale dans suspicious_elements toute retouche, incohérence de calcul, police irrégulière ou information manquante.`

// GeminiAnalyzer sends the receipt image inline to a Gemini model and
// parses the JSON verdict it answers with.
type GeminiAnalyzer struct {
	client *genai.Client
	model  string
}

// NewGemini builds the Gemini client. An empty apiKey yields an analyzer that
// fails every call with ErrNotConfigured, so the server can still start.
func NewGemini(ctx context.Context, apiKey, model, baseURL string, httpClient *http.Client) (*GeminiAnalyzer, error) {
	g := &GeminiAnalyzer{model: model}
	if apiKey == "" {
		return g, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  httpClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	g.client = client
	return g, nil
}

func (g *GeminiAnalyzer) Name() string { return "gemini" }

func (g *GeminiAnalyzer) Analyze(ctx context.Context, image string) (*Result, error) {
	if g.client == nil {
		return nil, ErrNotConfigured
	}
	mimeType, data, err := DecodeDataURI(image)
	if err != nil {
		return nil, err
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(geminiPrompt),
			genai.NewPartFromBytes(data, mimeType),
		}, genai.RoleUser),
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0.1),
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return nil, fmt.Errorf("gemini %s: %w", g.model, err)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return nil, fmt.Errorf("gemini: prompt blocked (%s)", resp.PromptFeedback.BlockReason)
	}

	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("gemini %s: empty answer", g.model)
	}
	return parseModelResult(text)
}
