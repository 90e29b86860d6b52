package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/licitaware/cotador/internal/domain"
)

// Input is everything the analysis stage receives about one item.
type Input struct {
	Description string
	Images      []Image
}

const systemPrompt = `Você é um analista de patrimônio público brasileiro. Dada a descrição
de um bem, produza uma análise estruturada para cotação de mercado.

Responda com EXATAMENTE um objeto JSON, sem texto fora dele, com os campos:
  tipo_processamento: "FIPE" para veículos automotores com tabela FIPE, senão "GOOGLE_SHOPPING"
  nome_canonico: nome canônico completo do item
  marca, modelo: quando identificáveis, senão string vazia
  query_principal: consulta de busca otimizada para encontrar o item à venda no Brasil
  queries_alternativas: até 3 variações da consulta
  termos_excluir: até 10 termos que indicam item errado (peças, capas, usados etc.)
  especificacoes: objeto chave-valor com as especificações técnicas conhecidas
  tem_specs_relevantes: true se as especificações bastam para distinguir o item
  veiculo: apenas quando tipo_processamento="FIPE", objeto com marca, modelo,
    ano, combustivel, tipo_veiculo ("carros", "motos" ou "caminhoes") e
    codigo_fipe quando conhecido`

const ocrPrompt = `Você extrai dados de etiquetas e plaquetas de identificação de bens.
Leia as imagens e responda com EXATAMENTE um objeto JSON:
  marca, modelo, part_number: o que estiver legível, senão string vazia
  numero_serie: quando legível
  especificacoes: objeto chave-valor com tudo que a etiqueta informa
  tem_specs_relevantes: true se a etiqueta basta para identificar o item no mercado`

const webSearchPrompt = `Pesquise na web as especificações técnicas do produto abaixo e
responda com um resumo objetivo em português: fabricante, linha, capacidade,
dimensões e variações de modelo relevantes para cotação. Não invente dados.`

// Client runs the analysis flow on top of one provider.
type Client struct {
	provider  Provider
	maxTokens int64
}

// NewClient wires the analysis client.
func NewClient(provider Provider, maxTokens int64) *Client {
	return &Client{provider: provider, maxTokens: maxTokens}
}

// Analyze produces the structured item analysis. Text-only inputs take
// a single call; inputs with label photos run an OCR pass first, an
// optional constrained web-search pass when the label alone cannot
// identify the item, and a synthesis pass over everything gathered.
// The returned Analysis carries the summed token ledger, and its Raw
// field is the exact payload to persist in claude_payload_json.
func (c *Client) Analyze(ctx context.Context, in Input) (*domain.Analysis, error) {
	var ledger domain.TokenLedger

	if len(in.Images) == 0 {
		resp, err := c.provider.Complete(ctx, Request{
			System:    systemPrompt,
			Text:      in.Description,
			MaxTokens: c.maxTokens,
		})
		if err != nil {
			return nil, err
		}
		ledger.Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)
		return c.finish(resp.Text, ledger)
	}

	ocr, err := c.provider.Complete(ctx, Request{
		System:    ocrPrompt,
		Text:      "Extraia os dados das imagens anexas.",
		Images:    in.Images,
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		return nil, err
	}
	ledger.Add(ocr.Usage.InputTokens, ocr.Usage.OutputTokens)

	ocrJSON, err := ExtractJSON(ocr.Text)
	if err != nil {
		return nil, fmt.Errorf("leitura da etiqueta: %w", err)
	}
	var label struct {
		Brand       string `json:"marca"`
		Model       string `json:"modelo"`
		HasRelevant bool   `json:"tem_specs_relevantes"`
	}
	if err := json.Unmarshal(ocrJSON, &label); err != nil {
		return nil, fmt.Errorf("leitura da etiqueta: %w", err)
	}

	var webSpecs string
	if !label.HasRelevant && label.Brand != "" && label.Model != "" && c.provider.SupportsWebSearch() {
		search, err := c.provider.Complete(ctx, Request{
			System:    webSearchPrompt,
			Text:      label.Brand + " " + label.Model,
			MaxTokens: c.maxTokens,
			WebSearch: true,
		})
		if err != nil {
			// The search pass is an enrichment; the synthesis can
			// still run on the label data alone.
			log.Warn().Err(err).Msg("spec web search failed, synthesizing from label only")
		} else {
			ledger.Add(search.Usage.InputTokens, search.Usage.OutputTokens)
			webSpecs = search.Text
		}
	}

	var sb strings.Builder
	if in.Description != "" {
		sb.WriteString("Descrição do bem:\n")
		sb.WriteString(in.Description)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Dados extraídos da etiqueta:\n")
	sb.Write(ocrJSON)
	if webSpecs != "" {
		sb.WriteString("\n\nEspecificações pesquisadas na web:\n")
		sb.WriteString(webSpecs)
	}

	synth, err := c.provider.Complete(ctx, Request{
		System:    systemPrompt,
		Text:      sb.String(),
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		return nil, err
	}
	ledger.Add(synth.Usage.InputTokens, synth.Usage.OutputTokens)
	return c.finish(synth.Text, ledger)
}

// finish extracts the JSON object from the model output, injects the
// token ledger and validates the whole payload.
func (c *Client) finish(text string, ledger domain.TokenLedger) (*domain.Analysis, error) {
	raw, err := ExtractJSON(text)
	if err != nil {
		return nil, err
	}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decodificando resposta do modelo: %w", err)
	}
	ledgerJSON, err := json.Marshal(ledger)
	if err != nil {
		return nil, err
	}
	payload["token_ledger"] = ledgerJSON
	full, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return domain.ParseAnalysis(full)
}
