package scanning

import (
	"context"
	"io"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("OpenAI", func() {
	var (
		server  *ghttp.Server
		scanner *OpenAI
		rec     *Recognition
		err     error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		scanner, err = NewOpenAI("test-key", server.URL(), "gpt-4o-mini")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		rec, err = scanner.Scan(context.Background(), Image{ID: "doc-1", Data: jpegBytes(), ContentType: "image/jpeg"})
	})

	When("the model answers", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/chat/completions"),
				ghttp.VerifyHeaderKV("Authorization", "Bearer test-key"),
				func(w http.ResponseWriter, r *http.Request) {
					body, _ := io.ReadAll(r.Body)
					Expect(string(body)).To(ContainSubstring(`"model":"gpt-4o-mini"`))
					Expect(string(body)).To(ContainSubstring("data:image/jpeg;base64,"))
				},
				ghttp.RespondWith(http.StatusOK, `{
					"id": "chatcmpl-1",
					"object": "chat.completion",
					"created": 1700000000,
					"model": "gpt-4o-mini",
					"choices": [{
						"index": 0,
						"finish_reason": "stop",
						"message": {"role": "assistant", "content": "Suministros Levante SA\nFactura: AB1234"}
					}]
				}`, http.Header{"Content-Type": []string{"application/json"}}),
			))
		})

		It("returns the transcript", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.Text).To(Equal("Suministros Levante SA\nFactura: AB1234"))
			Expect(rec.Provider).To(Equal("openai"))
		})
	})

	When("the key is rejected", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusUnauthorized,
				`{"error": {"message": "invalid api key", "type": "invalid_request_error"}}`,
				http.Header{"Content-Type": []string{"application/json"}}))
		})

		It("fails without retrying", func() {
			Expect(err).To(HaveOccurred())
			Expect(server.ReceivedRequests()).To(HaveLen(1))
		})
	})
})

var _ = Describe("NewOpenAI", func() {
	It("requires an api key", func() {
		_, err := NewOpenAI("", "", "")
		Expect(err).To(HaveOccurred())
	})
})
