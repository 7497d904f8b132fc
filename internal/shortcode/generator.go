// Package shortcode генерирует публичные короткие коды редиректов без
// координации между узлами.
//
// Код = первые Length символов hex(sha256(destination + salt)), где salt
// свежая случайная строка nanoid. Пространство кодов при длине L равно 16^L.
// Для L=6 это ~16.7 млн кодов; по парадоксу дней рождения вероятность хотя бы
// одного совпадения достигает 50% уже на ~4.8 тыс. записей, а при 10^5 живых
// записях каждый новый код совпадает с существующим с вероятностью ~0.6%.
// Поэтому вызывающий код обязан проверять уникальность по локальной реплике и
// перегенерировать код, либо увеличивать длину.
package shortcode

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	// DefaultLength длина кода по умолчанию
	DefaultLength = 6
	// MaxLength длина hex-представления sha256
	MaxLength = sha256.Size * 2

	saltLength = 21
)

// ErrInvalidLength длина кода вне диапазона 1..MaxLength
var ErrInvalidLength = errors.New("short code length out of range")

// Generator генератор коротких кодов фиксированной длины
type Generator struct {
	salt   func() (string, error)
	length int
}

// New создает генератор кодов длины length
func New(length int) (*Generator, error) {
	if length < 1 || length > MaxLength {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLength, length)
	}
	return &Generator{
		length: length,
		salt: func() (string, error) {
			return gonanoid.New(saltLength)
		},
	}, nil
}

// Length возвращает длину генерируемых кодов
func (g *Generator) Length() int {
	return g.length
}

// Generate возвращает новый код для destination. Повторные вызовы с тем же
// адресом дают разные коды.
func (g *Generator) Generate(destination string) (string, error) {
	salt, err := g.salt()
	if err != nil {
		return "", fmt.Errorf("failed to draw salt: %w", err)
	}

	sum := sha256.Sum256([]byte(destination + salt))
	return hex.EncodeToString(sum[:])[:g.length], nil
}

// CollisionProbability оценивает вероятность того, что новый код совпадет
// с одним из liveEntries уже выданных кодов.
func (g *Generator) CollisionProbability(liveEntries int) float64 {
	space := math.Pow(16, float64(g.length))
	return 1 - math.Pow(1-1/space, float64(liveEntries))
}
