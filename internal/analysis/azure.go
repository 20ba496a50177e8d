package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/ai/azdocumentintelligence"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
)

const (
	azureReceiptModel = "prebuilt-receipt"
	azureMinAuthentic = 0.7
)

var (
	ErrAzureUnauthorized = errors.New("azure: invalid or expired api key")
	ErrAzureNotFound     = errors.New("azure: invalid endpoint or resource not found")
	ErrAzureRateLimited  = errors.New("azure: rate limit reached")
)

// AzureAnalyzer runs the prebuilt-receipt model of Azure Document
// Intelligence and waits for the long-running operation to finish.
type AzureAnalyzer struct {
	client       *azdocumentintelligence.Client
	pollInterval time.Duration
}

func NewAzure(endpoint, key string, httpClient *http.Client) (*AzureAnalyzer, error) {
	return newAzure(endpoint, key, azcore.ClientOptions{Transport: httpClient})
}

func newAzure(endpoint, key string, opts azcore.ClientOptions) (*AzureAnalyzer, error) {
	a := &AzureAnalyzer{pollInterval: time.Second}
	if endpoint == "" || key == "" {
		return a, nil
	}
	client, err := azdocumentintelligence.NewClientWithKey(
		strings.TrimRight(endpoint, "/"),
		azcore.NewKeyCredential(key),
		&azdocumentintelligence.ClientOptions{ClientOptions: opts},
	)
	if err != nil {
		return nil, fmt.Errorf("azure: new client: %w", err)
	}
	a.client = client
	return a, nil
}

func (a *AzureAnalyzer) Name() string { return "azure" }

// azureField mirrors the wire shape of a Document Intelligence field.
type azureField struct {
	Type          string   `json:"type"`
	Content       string   `json:"content"`
	ValueString   string   `json:"valueString"`
	ValueDate     string   `json:"valueDate"`
	ValueNumber   *float64 `json:"valueNumber"`
	ValueCurrency *struct {
		Amount float64 `json:"amount"`
	} `json:"valueCurrency"`
	ValueArray  []azureField          `json:"valueArray"`
	ValueObject map[string]azureField `json:"valueObject"`
	Confidence  float64               `json:"confidence"`
}

func (f *azureField) text() string {
	if f == nil {
		return ""
	}
	if f.ValueString != "" {
		return strings.TrimSpace(f.ValueString)
	}
	return strings.TrimSpace(f.Content)
}

func (f *azureField) number() *float64 {
	if f == nil {
		return nil
	}
	if f.ValueCurrency != nil {
		v := f.ValueCurrency.Amount
		return &v
	}
	if f.ValueNumber != nil {
		v := *f.ValueNumber
		return &v
	}
	if v, ok := parseAmount(f.Content); ok {
		return &v
	}
	return nil
}

type azureDocument struct {
	DocType    string                `json:"docType"`
	Confidence float64               `json:"confidence"`
	Fields     map[string]azureField `json:"fields"`
}

type azureAnalyzeResult struct {
	Documents []azureDocument `json:"documents"`
}

// azureOperation accepts both the bare analyze result and the operation
// envelope that nests it under analyzeResult.
type azureOperation struct {
	azureAnalyzeResult
	AnalyzeResult *azureAnalyzeResult `json:"analyzeResult"`
}

func (op *azureOperation) documents() []azureDocument {
	if op.AnalyzeResult != nil {
		return op.AnalyzeResult.Documents
	}
	return op.Documents
}

func (a *AzureAnalyzer) Analyze(ctx context.Context, image string) (*Result, error) {
	if a.client == nil {
		return nil, ErrAzureNotConfigured
	}
	_, data, err := DecodeDataURI(image)
	if err != nil {
		return nil, err
	}

	poller, err := a.client.BeginAnalyzeDocument(ctx, azureReceiptModel,
		azdocumentintelligence.AnalyzeDocumentRequest{Base64Source: data}, nil)
	if err != nil {
		return nil, azureError(err)
	}
	resp, err := poller.PollUntilDone(ctx, &runtime.PollUntilDoneOptions{Frequency: a.pollInterval})
	if err != nil {
		return nil, azureError(err)
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("azure: encode result: %w", err)
	}
	var op azureOperation
	if err := json.Unmarshal(raw, &op); err != nil {
		return nil, fmt.Errorf("azure: decode result: %w", err)
	}
	return azureResult(&op, raw)
}

// azureError maps the documented failure statuses to sentinel errors.
func azureError(err error) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return ErrAzureUnauthorized
		case http.StatusNotFound:
			return ErrAzureNotFound
		case http.StatusTooManyRequests:
			return ErrAzureRateLimited
		}
	}
	return fmt.Errorf("azure %s: %w", azureReceiptModel, err)
}

func azureResult(op *azureOperation, raw []byte) (*Result, error) {
	docs := op.documents()
	if len(docs) == 0 {
		return nil, ErrNoDocument
	}
	doc := docs[0]
	field := func(name string) *azureField {
		if f, ok := doc.Fields[name]; ok {
			return &f
		}
		return nil
	}

	res := &Result{
		ConfidenceScore: int(math.Round(doc.Confidence * 100)),
		IsAuthentic:     doc.Confidence >= azureMinAuthentic,
		Raw:             string(raw),
	}

	if name := field("MerchantName").text(); name != "" {
		res.MerchantName = &name
	} else {
		res.SuspiciousElements = append(res.SuspiciousElements, "Nom du commerçant introuvable")
	}

	if f := field("TransactionDate"); f != nil {
		src := f.ValueDate
		if src == "" {
			src = f.Content
		}
		if d, ok := normalizeDate(src); ok {
			res.TransactionDate = &d
		}
	}
	if res.TransactionDate == nil {
		res.SuspiciousElements = append(res.SuspiciousElements, "Date de transaction introuvable")
	}

	res.TotalAmount = field("Total").number()
	if res.TotalAmount == nil {
		res.SuspiciousElements = append(res.SuspiciousElements, "Montant total introuvable")
	}

	if items := field("Items"); items != nil {
		for _, v := range items.ValueArray {
			props := v.ValueObject
			get := func(name string) *azureField {
				if f, ok := props[name]; ok {
					return &f
				}
				return nil
			}
			name := get("Description").text()
			if name == "" {
				continue
			}
			res.Items = append(res.Items, Item{
				Name:       name,
				Quantity:   get("Quantity").number(),
				UnitPrice:  get("Price").number(),
				TotalPrice: get("TotalPrice").number(),
			})
		}
	}

	if !res.IsAuthentic {
		res.SuspiciousElements = append(res.SuspiciousElements, "Confiance d'extraction faible")
		res.Analysis = fmt.Sprintf("Extraction Azure peu fiable (confiance: %d%%). Une vérification manuelle est recommandée.", res.ConfidenceScore)
	} else {
		res.Analysis = fmt.Sprintf("Ticket reconnu par Azure Document Intelligence (confiance: %d%%).", res.ConfidenceScore)
	}
	res.normalize()
	return res, nil
}
