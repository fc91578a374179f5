package services

import (
	"context"

	"github.com/bestwork/mlm-system/models"
	"github.com/bestwork/mlm-system/placement"
	"github.com/bestwork/mlm-system/repositories"
	"golang.org/x/sync/errgroup"
)

type DashboardService interface {
	GetStats(ctx context.Context, memberID int) (models.DashboardStats, error)
}

type dashboardService struct {
	memberRepo repositories.MemberRepository
	orderRepo  repositories.OrderRepository
}

func NewDashboardService(memberRepo repositories.MemberRepository, orderRepo repositories.OrderRepository) DashboardService {
	return &dashboardService{memberRepo: memberRepo, orderRepo: orderRepo}
}

func (s *dashboardService) GetStats(ctx context.Context, memberID int) (models.DashboardStats, error) {
	var stats models.DashboardStats

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.memberRepo.CountBySponsor(gctx, memberID)
		stats.SponsorCount = n
		return err
	})
	g.Go(func() error {
		n, err := s.memberRepo.CountPlacedByParentSide(gctx, memberID, placement.SideLeft)
		stats.TeamLeft = n
		return err
	})
	g.Go(func() error {
		n, err := s.memberRepo.CountPlacedByParentSide(gctx, memberID, placement.SideRight)
		stats.TeamRight = n
		return err
	})
	g.Go(func() error {
		n, err := s.memberRepo.CountPendingBySponsor(gctx, memberID)
		stats.PendingPlacements = n
		return err
	})
	g.Go(func() error {
		n, err := s.orderRepo.CountByMember(gctx, memberID)
		stats.OrdersTotal = n
		return err
	})

	if err := g.Wait(); err != nil {
		return models.DashboardStats{}, err
	}
	return stats, nil
}
