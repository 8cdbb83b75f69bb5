package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rawblock/ring-engine/internal/ingest"
	"github.com/rawblock/ring-engine/internal/metrics"
	"github.com/rawblock/ring-engine/pkg/models"
)

const maxUploadBytes = 64 << 20

var errNoTransactions = errors.New(`request must carry a CSV "file" or a JSON "transactions" array`)

// batchRequest is the JSON body of the analysis routes.
type batchRequest struct {
	Transactions []ingest.Record `json:"transactions"`
}

// readBatch parses the request into transactions: a multipart CSV upload in
// field "file", a raw text/csv body, or a JSON body with a "transactions"
// array.
func readBatch(c *gin.Context) ([]models.Transaction, string, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("file")
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", errNoTransactions, err)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, "", err
		}
		defer f.Close()

		txs, err := ingest.ReadCSV(f)
		return txs, models.SourceUpload, err
	}

	if c.ContentType() == "text/csv" {
		txs, err := ingest.ReadCSV(c.Request.Body)
		return txs, models.SourceUpload, err
	}

	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, "", fmt.Errorf("invalid JSON body: %w", err)
	}
	if req.Transactions == nil {
		return nil, "", errNoTransactions
	}
	txs, err := ingest.ParseRecords(req.Transactions)
	return txs, models.SourceJSON, err
}

// respondInputError maps ingestion failures onto 400 responses.
func respondInputError(c *gin.Context, err error) {
	var schemaErr *ingest.SchemaError
	var parseErr *ingest.ParseError

	switch {
	case errors.As(err, &schemaErr):
		metrics.RecordIngestError("schema")
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid CSV format",
			"details": err.Error(),
			"missing": schemaErr.Missing,
		})
	case errors.As(err, &parseErr):
		metrics.RecordIngestError("parse")
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid transaction record",
			"details": err.Error(),
			"row":     parseErr.Row,
			"field":   parseErr.Field,
		})
	case errors.Is(err, ingest.ErrEmptyInput):
		metrics.RecordIngestError("empty")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Empty upload", "details": err.Error()})
	default:
		metrics.RecordIngestError("body")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
	}
}
