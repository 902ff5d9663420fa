package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/invoiceai/invoiceai-server/internal/ai"
	"github.com/invoiceai/invoiceai-server/internal/repository"
)

const (
	// Older turns beyond this are dropped before calling the model.
	maxHistoryMessages = 20

	fallbackReply = "I'm sorry, I couldn't process that question right now. Please try again in a moment."
)

// Service answers natural-language questions about an organization's
// spending. Each question is grounded with a summary of the org's actual
// expense data so the model answers from numbers, not guesses.
type Service struct {
	chatter  ai.Chatter
	expenses *repository.ExpenseRepository
	logger   *zap.Logger
}

func NewService(chatter ai.Chatter, expenses *repository.ExpenseRepository, logger *zap.Logger) *Service {
	return &Service{
		chatter:  chatter,
		expenses: expenses,
		logger:   logger,
	}
}

// Ask sends the question plus recent conversation history to the model.
// Any failure degrades to a fixed fallback reply so the chat surface
// never errors out on the user.
func (s *Service) Ask(ctx context.Context, orgID uuid.UUID, history []ai.ChatMessage, question string) string {
	system, err := s.buildSystemPrompt(ctx, orgID)
	if err != nil {
		s.logger.Error("failed to build assistant context",
			zap.String("organization_id", orgID.String()),
			zap.Error(err))
		return fallbackReply
	}

	messages := append(trimHistory(history), ai.ChatMessage{
		Role:    "user",
		Content: question,
	})

	reply, err := s.chatter.Chat(ctx, system, messages)
	if err != nil {
		s.logger.Error("assistant chat failed",
			zap.String("organization_id", orgID.String()),
			zap.Error(err))
		return fallbackReply
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return fallbackReply
	}
	return reply
}

func trimHistory(history []ai.ChatMessage) []ai.ChatMessage {
	if len(history) <= maxHistoryMessages {
		return history
	}
	return history[len(history)-maxHistoryMessages:]
}

// buildSystemPrompt summarizes the org's current spending so the model
// can answer with real figures.
func (s *Service) buildSystemPrompt(ctx context.Context, orgID uuid.UUID) (string, error) {
	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, 0).Add(-24 * time.Hour)
	yearStart := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, time.UTC)

	monthTotal, err := s.expenses.SumApproved(ctx, orgID, monthStart, monthEnd)
	if err != nil {
		return "", fmt.Errorf("sum month spend: %w", err)
	}
	yearTotal, err := s.expenses.SumApproved(ctx, orgID, yearStart, now)
	if err != nil {
		return "", fmt.Errorf("sum year spend: %w", err)
	}
	byCategory, err := s.expenses.SpendByCategory(ctx, orgID, monthStart, monthEnd)
	if err != nil {
		return "", fmt.Errorf("spend by category: %w", err)
	}
	topVendors, err := s.expenses.TopVendors(ctx, orgID, yearStart, now, 5)
	if err != nil {
		return "", fmt.Errorf("top vendors: %w", err)
	}
	pending, err := s.expenses.CountPendingReview(ctx, orgID)
	if err != nil {
		return "", fmt.Errorf("count pending review: %w", err)
	}

	var b strings.Builder
	b.WriteString("You are an expense analysis assistant for a business. ")
	b.WriteString("Answer questions about the organization's spending using ONLY the data below. ")
	b.WriteString("If the data does not cover the question, say so instead of guessing. ")
	b.WriteString("Keep answers concise and include concrete amounts where relevant.\n\n")

	fmt.Fprintf(&b, "Today's date: %s\n", now.Format("2006-01-02"))
	fmt.Fprintf(&b, "Approved spend this month (%s): %s\n", monthStart.Format("January 2006"), monthTotal.StringFixed(2))
	fmt.Fprintf(&b, "Approved spend year to date: %s\n", yearTotal.StringFixed(2))
	fmt.Fprintf(&b, "Expenses awaiting review: %d\n", pending)

	if len(byCategory) > 0 {
		b.WriteString("\nThis month's spend by category:\n")
		for _, c := range byCategory {
			fmt.Fprintf(&b, "- %s: %s (%d expenses)\n", c.CategoryName, c.Total.StringFixed(2), c.Count)
		}
	}
	if len(topVendors) > 0 {
		b.WriteString("\nTop vendors this year by total spend:\n")
		for _, v := range topVendors {
			fmt.Fprintf(&b, "- %s: %s across %d expenses\n", v.VendorName, v.Total.StringFixed(2), v.Count)
		}
	}

	return b.String(), nil
}
