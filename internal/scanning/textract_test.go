package scanning

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type fakeTextract struct {
	out   *textract.AnalyzeExpenseOutput
	err   error
	input *textract.AnalyzeExpenseInput
}

func (f *fakeTextract) AnalyzeExpense(ctx context.Context, params *textract.AnalyzeExpenseInput, optFns ...func(*textract.Options)) (*textract.AnalyzeExpenseOutput, error) {
	f.input = params
	return f.out, f.err
}

func expenseField(kind, value string) types.ExpenseField {
	return types.ExpenseField{
		Type:           &types.ExpenseType{Text: aws.String(kind)},
		ValueDetection: &types.ExpenseDetection{Text: aws.String(value)},
	}
}

func lineBlock(text string, conf float32) types.Block {
	return types.Block{BlockType: types.BlockTypeLine, Text: aws.String(text), Confidence: aws.Float32(conf)}
}

var _ = Describe("Textract", func() {
	var (
		client  *fakeTextract
		scanner *Textract
		data    []byte
		rec     *Recognition
		err     error
	)

	BeforeEach(func() {
		data = jpegBytes()
		total := expenseField("TOTAL", "12,50 €")
		total.Currency = &types.ExpenseCurrency{Code: aws.String("EUR")}

		client = &fakeTextract{out: &textract.AnalyzeExpenseOutput{
			ExpenseDocuments: []types.ExpenseDocument{{
				Blocks: []types.Block{
					lineBlock("Ferretería Hermanos López", 98),
					lineBlock("Total: 12,50 €", 90),
					{BlockType: types.BlockTypeWord, Text: aws.String("Total:")},
				},
				SummaryFields: []types.ExpenseField{
					expenseField("VENDOR_NAME", "Ferretería Hermanos López"),
					expenseField("INVOICE_RECEIPT_ID", "2024-0456"),
					expenseField("INVOICE_RECEIPT_DATE", "05/03/2024"),
					expenseField("TAX_PAYER_ID", "B12345678"),
					total,
				},
				LineItemGroups: []types.LineItemGroup{{
					LineItems: []types.LineItemFields{{
						LineItemExpenseFields: []types.ExpenseField{
							expenseField("ITEM", "Tornillos M6 caja"),
							expenseField("QUANTITY", "100"),
							expenseField("PRICE", "12,50"),
							expenseField("EXPENSE_ROW", "Tornillos M6 caja 100 12,50"),
						},
					}},
				}},
			}},
		}}
		scanner = NewTextractWithClient(client)
	})

	JustBeforeEach(func() {
		rec, err = scanner.Scan(context.Background(), Image{ID: "doc-1", Data: data, ContentType: "image/jpeg"})
	})

	It("sends the image bytes", func() {
		Expect(err).NotTo(HaveOccurred())
		Expect(client.input.Document.Bytes).To(Equal(data))
	})

	It("joins the LINE blocks into text", func() {
		Expect(rec.Text).To(Equal("Ferretería Hermanos López\nTotal: 12,50 €"))
		Expect(*rec.Confidence).To(BeNumerically("~", 0.94, 1e-6))
	})

	It("maps the summary fields", func() {
		Expect(rec.Fields.Supplier).To(HaveValue(Equal("Ferretería Hermanos López")))
		Expect(rec.Fields.DocumentNumber).To(HaveValue(Equal("2024-0456")))
		Expect(rec.Fields.DocumentDate).To(HaveValue(Equal("05/03/2024")))
		Expect(rec.Fields.TaxID).To(HaveValue(Equal("B12345678")))
		Expect(rec.Fields.TotalAmount.StringFixed(2)).To(Equal("12.50"))
		Expect(rec.Fields.Currency).To(Equal("EUR"))
	})

	It("maps line items", func() {
		Expect(rec.Fields.Items).To(HaveLen(1))
		Expect(rec.Fields.Items[0].Description).To(Equal("Tornillos M6 caja"))
		Expect(rec.Fields.Items[0].Quantity.IntPart()).To(Equal(int64(100)))
		Expect(rec.Fields.Items[0].UnitPrice).To(BeNil())
		Expect(rec.Fields.Items[0].TotalPrice.StringFixed(2)).To(Equal("12.50"))
	})

	It("uses the structured threshold", func() {
		Expect(scanner.MinTextLength()).To(Equal(StructuredMinTextLength))
	})

	When("the first TOTAL is outside the accepted range", func() {
		prependTotal := func(value string) {
			summary := client.out.ExpenseDocuments[0].SummaryFields
			client.out.ExpenseDocuments[0].SummaryFields = append([]types.ExpenseField{expenseField("TOTAL", value)}, summary...)
		}

		When("it is zero", func() {
			BeforeEach(func() {
				prependTotal("0,00")
			})

			It("uses the later TOTAL", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(rec.Fields.TotalAmount.StringFixed(2)).To(Equal("12.50"))
			})
		})

		When("it is a million", func() {
			BeforeEach(func() {
				prependTotal("1.000.000,00")
			})

			It("uses the later TOTAL", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(rec.Fields.TotalAmount.StringFixed(2)).To(Equal("12.50"))
			})
		})
	})

	When("every TOTAL is outside the accepted range", func() {
		BeforeEach(func() {
			client.out.ExpenseDocuments[0].SummaryFields = []types.ExpenseField{
				expenseField("VENDOR_NAME", "Ferretería Hermanos López"),
				expenseField("TOTAL", "0"),
				expenseField("AMOUNT_DUE", "999999"),
			}
		})

		It("leaves the total unset", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.Fields.Supplier).To(HaveValue(Equal("Ferretería Hermanos López")))
			Expect(rec.Fields.TotalAmount).To(BeNil())
		})
	})

	When("the call fails", func() {
		BeforeEach(func() {
			client.err = errors.New("ThrottlingException")
		})

		It("returns the error", func() {
			Expect(err).To(MatchError(ContainSubstring("ThrottlingException")))
		})
	})

	When("nothing is recognized", func() {
		BeforeEach(func() {
			client.out = &textract.AnalyzeExpenseOutput{}
		})

		It("returns empty text and no fields", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.Text).To(BeEmpty())
			Expect(rec.Fields).To(BeNil())
		})
	})
})
