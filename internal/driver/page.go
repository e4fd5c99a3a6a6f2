package driver

import (
	"context"

	"storyharness/pkg/model"
)

// Page 被测页面的最小操作集，CDP 浏览器与进程内替身都实现它
type Page interface {
	Navigate(ctx context.Context, url string) error
	Clear(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, text string) error
	PressEnter(ctx context.Context, selector string) error
	Click(ctx context.Context, selector string, index int) error
	ClickText(ctx context.Context, selector, text string) error
	Query(ctx context.Context, selector string) ([]model.Element, error)
	Storage(ctx context.Context, key string) (string, bool, error)
	Close() error
}

// 页面契约中使用的选择器
const (
	SelSearch       = "#search"
	SelItem         = ".item"
	SelDismiss      = ".button-small"
	SelButton       = "button"
	SelLastSearches = ".last-searches button"
	SelParagraph    = "p"
	SelFooter       = "footer"

	StorageSearchKey = "search"
)
