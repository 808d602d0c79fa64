package dto

// NotificationQuery captures inbox list filters.
type NotificationQuery struct {
	Unread   bool `form:"unread"`
	Page     int  `form:"page"`
	PageSize int  `form:"page_size"`
}
