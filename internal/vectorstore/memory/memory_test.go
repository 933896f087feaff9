package memory

import (
	"testing"

	"pdfqa/internal/vectorstore"
	"pdfqa/internal/vectorstore/storetest"
)

func TestStorage(t *testing.T) {
	storetest.Run(t, func(*testing.T) vectorstore.Storage { return NewStorage() })
}
