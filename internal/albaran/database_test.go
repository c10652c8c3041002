package albaran

import (
	"errors"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/zombor/albaran-tracker/internal/extraction"
	"github.com/zombor/albaran-tracker/internal/processing"
)

var _ = Describe("BoltDB", func() {
	var (
		db  *BoltDB
		now time.Time
		doc *Document
	)

	BeforeEach(func() {
		var err error
		db, err = NewBoltDB(filepath.Join(GinkgoT().TempDir(), "test.db"))
		Expect(err).NotTo(HaveOccurred())

		now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		db.now = func() time.Time { return now }

		supplier := "Ferretería Hermanos López"
		doc = &Document{
			ID:          "doc-1",
			Filename:    "doc-1_albaran.jpg",
			ContentType: "image/jpeg",
			Status:      processing.StatusPending,
			Supplier:    &supplier,
			TotalAmount: extraction.NewAmount(decimal.RequireFromString("1234.56")),
			Currency:    "EUR",
			Items: []Item{
				{LineNumber: 1, LineItem: extraction.LineItem{Description: "Tornillos M6"}},
			},
			CreatedAt: time.Date(2024, 2, 28, 9, 0, 0, 0, time.UTC),
		}
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	Describe("SaveDocument and GetDocument", func() {
		It("round trips the document", func() {
			Expect(db.SaveDocument(doc)).To(Succeed())

			saved, err := db.GetDocument("doc-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(saved.Supplier).To(HaveValue(Equal("Ferretería Hermanos López")))
			Expect(saved.TotalAmount.Equal(decimal.RequireFromString("1234.56"))).To(BeTrue())
			Expect(saved.Items).To(HaveLen(1))
			Expect(saved.Items[0].LineNumber).To(Equal(1))
			Expect(saved.Items[0].Description).To(Equal("Tornillos M6"))
			Expect(saved.CreatedAt.Equal(doc.CreatedAt)).To(BeTrue())
		})

		It("returns ErrNotFound for unknown ids", func() {
			_, err := db.GetDocument("missing")
			Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
		})
	})

	Describe("ListDocuments", func() {
		It("returns an empty list on a new database", func() {
			docs, err := db.ListDocuments()
			Expect(err).NotTo(HaveOccurred())
			Expect(docs).To(BeEmpty())
		})

		It("returns every document", func() {
			Expect(db.SaveDocument(doc)).To(Succeed())
			Expect(db.SaveDocument(&Document{ID: "doc-2"})).To(Succeed())

			docs, err := db.ListDocuments()
			Expect(err).NotTo(HaveOccurred())
			Expect(docs).To(HaveLen(2))
		})
	})

	Describe("DeleteDocument", func() {
		It("removes the document", func() {
			Expect(db.SaveDocument(doc)).To(Succeed())
			Expect(db.DeleteDocument("doc-1")).To(Succeed())

			_, err := db.GetDocument("doc-1")
			Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
		})

		It("returns ErrNotFound for unknown ids", func() {
			err := db.DeleteDocument("missing")
			Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
		})
	})

	Describe("UpdateStatus", func() {
		BeforeEach(func() {
			Expect(db.SaveDocument(doc)).To(Succeed())
		})

		It("applies an allowed transition", func() {
			Expect(db.UpdateStatus("doc-1", processing.StatusProcessing)).To(Succeed())

			saved, err := db.GetDocument("doc-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(saved.Status).To(Equal(processing.StatusProcessing))
			Expect(saved.UpdatedAt.Equal(now)).To(BeTrue())
		})

		It("leaves the other fields alone", func() {
			Expect(db.UpdateStatus("doc-1", processing.StatusProcessing)).To(Succeed())

			saved, err := db.GetDocument("doc-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(saved.Supplier).To(HaveValue(Equal("Ferretería Hermanos López")))
			Expect(saved.Items).To(HaveLen(1))
		})

		It("refuses a transition the state machine does not allow", func() {
			err := db.UpdateStatus("doc-1", processing.StatusCompleted)
			Expect(errors.Is(err, processing.ErrInvalidTransition)).To(BeTrue())

			saved, getErr := db.GetDocument("doc-1")
			Expect(getErr).NotTo(HaveOccurred())
			Expect(saved.Status).To(Equal(processing.StatusPending))
		})

		It("allows a terminal document back to pending", func() {
			Expect(db.UpdateStatus("doc-1", processing.StatusProcessing)).To(Succeed())
			Expect(db.UpdateStatus("doc-1", processing.StatusFailed)).To(Succeed())
			Expect(db.UpdateStatus("doc-1", processing.StatusPending)).To(Succeed())
		})

		It("returns ErrNotFound for unknown ids", func() {
			err := db.UpdateStatus("missing", processing.StatusProcessing)
			Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
		})
	})
})
