package service

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// newBusinessNumber 生成带前缀的业务单号，如 RX-1A2B3C4D、INV-9F8E7D6C。
// 8位十六进制片段在单店规模下冲突概率极低，调用方仍需查重重试。
func newBusinessNumber(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, strings.ToUpper(uuid.New().String()[:8]))
}

// generateUniqueNumber 生成业务单号并查重，冲突时重试
func generateUniqueNumber(prefix string, exists func(string) (bool, error)) (string, error) {
	const maxAttempts = 5
	for i := 0; i < maxAttempts; i++ {
		number := newBusinessNumber(prefix)
		taken, err := exists(number)
		if err != nil {
			return "", fmt.Errorf("check number uniqueness: %w", err)
		}
		if !taken {
			return number, nil
		}
	}
	return "", fmt.Errorf("failed to generate unique %s number after %d attempts", prefix, maxAttempts)
}
