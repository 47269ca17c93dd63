package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/cinema-seat-booking/internal/model"
	"github.com/iliyamo/cinema-seat-booking/internal/pkg/logger"
	"github.com/iliyamo/cinema-seat-booking/internal/repository/memory"
	"github.com/iliyamo/cinema-seat-booking/internal/utils"
)

// Demo data for STORE_DRIVER=memory.
const (
	demoEmail    = "demo@example.com"
	demoPassword = "demo-password"
)

// seedDemo creates one theater with a 5x10 seat grid and a demo buyer.
func seedDemo(ctx context.Context, s *memory.Store, bcryptCost int) error {
	s.AddTheater(model.Theater{
		ID:        1,
		Name:      "Screen 1",
		MovieID:   1,
		MovieName: "Demo Feature",
		StartsAt:  time.Now().UTC().Add(24 * time.Hour).Truncate(time.Hour),
	})
	numbers := make([]string, 0, 50)
	for _, row := range "ABCDE" {
		for n := 1; n <= 10; n++ {
			numbers = append(numbers, fmt.Sprintf("%c%d", row, n))
		}
	}
	s.AddSeats(1, numbers...)

	hash, err := utils.HashPassword(demoPassword, bcryptCost)
	if err != nil {
		return err
	}
	u := &model.User{Email: demoEmail, PasswordHash: hash, Role: "CUSTOMER", IsActive: true}
	if err := s.Users().Create(ctx, u); err != nil {
		return err
	}
	logger.Info("seeded demo data",
		zap.Uint64("theater_id", 1), zap.Int("seats", len(numbers)), zap.String("email", demoEmail))
	return nil
}
