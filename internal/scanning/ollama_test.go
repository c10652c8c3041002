package scanning

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("Ollama", func() {
	var (
		server  *ghttp.Server
		scanner *Ollama
		rec     *Recognition
		err     error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		scanner, err = NewOllama(server.URL(), "qwen2.5vl")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		rec, err = scanner.Scan(context.Background(), Image{ID: "doc-1", Data: pngBytes(), ContentType: "image/png"})
	})

	When("the model answers", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/api/chat"),
				ghttp.VerifyContentType("application/json"),
				func(w http.ResponseWriter, r *http.Request) {
					var req ollamaChatRequest
					body, _ := io.ReadAll(r.Body)
					Expect(json.Unmarshal(body, &req)).To(Succeed())
					Expect(req.Model).To(Equal("qwen2.5vl"))
					Expect(req.Stream).To(BeFalse())
					Expect(req.Messages).To(HaveLen(2))
					Expect(req.Messages[1].Images).To(HaveLen(1))
				},
				ghttp.RespondWithJSONEncoded(http.StatusOK, ollamaChatResponse{
					Message: ollamaMessage{Role: "assistant", Content: "```\nFerretería López\nTotal: 12,50 €\n```"},
					Done:    true,
				}),
			))
		})

		It("returns the transcript", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.Text).To(Equal("Ferretería López\nTotal: 12,50 €"))
			Expect(rec.Provider).To(Equal("ollama"))
			Expect(rec.Fields).To(BeNil())
		})
	})

	When("the server errors", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusInternalServerError, "model not loaded"))
		})

		It("returns the status", func() {
			Expect(err).To(MatchError(ContainSubstring("status 500")))
			Expect(err).To(MatchError(ContainSubstring("model not loaded")))
		})
	})
})

var _ = Describe("NewOllama", func() {
	It("uses the default text threshold", func() {
		scanner, err := NewOllama("", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(scanner.MinTextLength()).To(Equal(DefaultMinTextLength))
		Expect(scanner.WithMinTextLength(25).MinTextLength()).To(Equal(25))
	})
})
