package scanning

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"google.golang.org/api/documentai/v1"
	"google.golang.org/api/option"
)

const documentAIResponse = `{
  "document": {
    "text": "Ferretería Hermanos López\nNº Albarán: 2024-0456\nTornillos M6 caja 100 unidades 12,50\nTotal: 12,50 €",
    "entities": [
      {"type": "supplier_name", "mentionText": "Ferretería Hermanos López", "confidence": 0.9},
      {"type": "invoice_id", "mentionText": "2024-0456", "confidence": 0.8},
      {"type": "supplier_tax_id", "mentionText": "b12345678", "confidence": 0.7},
      {"type": "total_amount", "mentionText": "12,50 €", "confidence": 0.6,
       "normalizedValue": {"moneyValue": {"currencyCode": "EUR", "units": "12", "nanos": 500000000}}},
      {"type": "line_item", "mentionText": "Tornillos M6 caja 100 unidades 12,50",
       "properties": [
         {"type": "line_item/description", "mentionText": "Tornillos M6 caja"},
         {"type": "line_item/quantity", "mentionText": "100"},
         {"type": "line_item/unit_price", "mentionText": "0,125"},
         {"type": "line_item/amount", "mentionText": "12,50"}
       ]}
    ]
  }
}`

var _ = Describe("DocumentAI", func() {
	var (
		server  *ghttp.Server
		scanner *DocumentAI
		rec     *Recognition
		err     error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		scanner, err = NewDocumentAI(context.Background(),
			DocumentAIConfig{ProjectID: "albaranes", Location: "eu", ProcessorID: "abc123"},
			option.WithEndpoint(server.URL()+"/"),
			option.WithoutAuthentication(),
		)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		rec, err = scanner.Scan(context.Background(), Image{ID: "doc-1", Data: jpegBytes(), ContentType: "image/jpeg"})
	})

	When("the processor recognizes the document", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/v1/projects/albaranes/locations/eu/processors/abc123:process"),
				func(w http.ResponseWriter, r *http.Request) {
					var req documentai.GoogleCloudDocumentaiV1ProcessRequest
					body, _ := io.ReadAll(r.Body)
					Expect(json.Unmarshal(body, &req)).To(Succeed())
					Expect(req.RawDocument.MimeType).To(Equal("image/jpeg"))
					Expect(req.RawDocument.Content).NotTo(BeEmpty())
				},
				ghttp.RespondWith(http.StatusOK, documentAIResponse, http.Header{"Content-Type": []string{"application/json"}}),
			))
		})

		It("returns the document text", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.Text).To(HavePrefix("Ferretería Hermanos López"))
			Expect(rec.Provider).To(Equal("documentai"))
		})

		It("maps the summary entities", func() {
			Expect(rec.Fields).NotTo(BeNil())
			Expect(rec.Fields.Supplier).To(HaveValue(Equal("Ferretería Hermanos López")))
			Expect(rec.Fields.DocumentNumber).To(HaveValue(Equal("2024-0456")))
			Expect(rec.Fields.TaxID).To(HaveValue(Equal("b12345678")))
			Expect(rec.Fields.TotalAmount.StringFixed(2)).To(Equal("12.50"))
			Expect(rec.Fields.Currency).To(Equal("EUR"))
		})

		It("maps line items with their numbers", func() {
			Expect(rec.Fields.Items).To(HaveLen(1))
			item := rec.Fields.Items[0]
			Expect(item.Description).To(Equal("Tornillos M6 caja"))
			Expect(item.Quantity.StringFixed(0)).To(Equal("100"))
			Expect(item.UnitPrice.String()).To(Equal("0.125"))
			Expect(item.TotalPrice.StringFixed(2)).To(Equal("12.50"))
		})

		It("averages entity confidence", func() {
			Expect(rec.Confidence).NotTo(BeNil())
			Expect(*rec.Confidence).To(BeNumerically("~", 0.75, 1e-9))
		})
	})

	When("the first total is zero", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusOK, `{
  "document": {
    "text": "Total: 0,00 €\nTotal: 12,50 €",
    "entities": [
      {"type": "total_amount", "mentionText": "0,00 €",
       "normalizedValue": {"moneyValue": {"currencyCode": "EUR", "units": "0"}}},
      {"type": "total_amount", "mentionText": "12,50 €",
       "normalizedValue": {"moneyValue": {"currencyCode": "EUR", "units": "12", "nanos": 500000000}}}
    ]
  }
}`, http.Header{"Content-Type": []string{"application/json"}}))
		})

		It("uses the later total", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.Fields.TotalAmount.StringFixed(2)).To(Equal("12.50"))
		})
	})

	When("the processor returns no entities", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusOK,
				`{"document": {"text": "Some plain text"}}`,
				http.Header{"Content-Type": []string{"application/json"}}))
		})

		It("returns text without fields", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.Text).To(Equal("Some plain text"))
			Expect(rec.Fields).To(BeNil())
			Expect(rec.Confidence).To(BeNil())
		})
	})

	When("the quota is exceeded", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusTooManyRequests,
				`{"error": {"code": 429, "message": "Quota exceeded", "status": "RESOURCE_EXHAUSTED"}}`,
				http.Header{"Content-Type": []string{"application/json"}}))
		})

		It("returns an error", func() {
			Expect(err).To(MatchError(ContainSubstring("Quota exceeded")))
		})
	})
})

var _ = Describe("NewDocumentAI", func() {
	It("requires a processor", func() {
		_, err := NewDocumentAI(context.Background(), DocumentAIConfig{ProjectID: "p"})
		Expect(err).To(HaveOccurred())
	})
})
