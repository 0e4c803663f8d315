package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

// GenerateUUID returns a random v4 identifier for tickets, ticket types and orders.
func GenerateUUID() string {
	return uuid.NewString()
}

// GenerateRequestID returns a short sortable id for correlating log lines.
func GenerateRequestID() string {
	timestamp := time.Now().Unix()
	randomNum, _ := rand.Int(rand.Reader, big.NewInt(999999))
	return fmt.Sprintf("req_%d_%06d", timestamp, randomNum.Int64())
}
