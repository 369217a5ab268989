package ml

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/onfert/analyst/internal/models"
)

// Field names of the structured response.
const (
	fieldProduct    = "productRecommendation"
	fieldReasoning  = "reasoning"
	fieldConfidence = "confidence"
)

var requiredFields = []string{fieldProduct, fieldReasoning, fieldConfidence}

const (
	descProduct    = "The recommended fertilizer product."
	descReasoning  = "A detailed explanation for the recommendation, based on the soil data and image analysis."
	descConfidence = "A confidence score between 0 and 1 for the recommendation."
)

// BuildPrompt renders the instruction text sent alongside the image.
func BuildPrompt(soil models.SoilData) (string, error) {
	data, err := json.MarshalIndent(soil, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize soil data: %w", err)
	}

	var products strings.Builder
	for _, p := range models.ProductNames() {
		products.WriteString("- ")
		products.WriteString(p)
		products.WriteString("\n")
	}

	return fmt.Sprintf(`Você é uma IA especialista em agronomia para uma empresa de fertilizantes chamada "ON FERT". Sua tarefa é analisar os dados do solo fornecidos e uma foto da cultura/solo para recomendar o melhor produto fertilizante.

Produtos Disponíveis:
%s
Por favor, analise as seguintes informações:
- Dados do Solo: %s
- Imagem Anexada: Uma foto da condição da cultura e/ou do solo. Procure por pistas visuais como descoloração das folhas (clorose, necrose), crescimento atrofiado ou textura do solo.

Com base em uma análise abrangente dos dados e da imagem, forneça uma recomendação de produto personalizada. Sua resposta deve estar no formato JSON correspondente ao esquema fornecido.`,
		products.String(), data), nil
}
