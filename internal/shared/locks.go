package shared

import "fmt"

// ReceivablePaymentLockKey builds the redis key guarding payment submission on a receivable.
func ReceivablePaymentLockKey(receivableID int64) string {
	return fmt.Sprintf("ar:receivable:%d:payment", receivableID)
}

// NotificationChannel is the redis pub/sub channel for a store's notifications.
func NotificationChannel(storeID int64) string {
	return fmt.Sprintf("notifications:store:%d", storeID)
}
