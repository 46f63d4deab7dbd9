package service

import "github.com/damoang/coinchat/internal/domain"

// Notifier pushes committed state to connected clients. Implemented by the real-time gateway.
type Notifier interface {
	NotifyMessage(userIDs []string, msg *domain.MessageView)
	NotifyWallet(userID string, wallet *domain.Wallet)
}

type nopNotifier struct{}

func (nopNotifier) NotifyMessage([]string, *domain.MessageView) {}
func (nopNotifier) NotifyWallet(string, *domain.Wallet)         {}
