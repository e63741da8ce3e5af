// scanner/scanner.go
package scanner

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"device_loan_tool/db"
	"device_loan_tool/logs"
	"device_loan_tool/mailer"
	"device_loan_tool/models"
)

// DefaultThreshold 超期阈值：借出满 24 小时未还
const DefaultThreshold = 24 * time.Hour

// Scanner 周期扫描超期设备并给借用人发提醒。
// 同一用户的多台超期设备合并成一封；发送成功才标 email_sent，
// 失败的组留到下轮重试，不影响其他组。
type Scanner struct {
	Repo      *db.Repo
	Sink      mailer.Sink
	Threshold time.Duration
	Domain    string // 收件人邮箱域，如 "@example.org"

	// Now 可注入，测试用
	Now func() time.Time
}

func New(repo *db.Repo, sink mailer.Sink, domain string) *Scanner {
	return &Scanner{
		Repo:      repo,
		Sink:      sink,
		Threshold: DefaultThreshold,
		Domain:    domain,
		Now:       func() time.Time { return time.Now().UTC() },
	}
}

// RunOnce 跑一轮扫描。整轮不是一个大事务：每组各自提交，
// 中途挂掉最多是已通知的组被标记，未发的下轮自然重试。
func (s *Scanner) RunOnce(ctx context.Context) error {
	now := s.Now()
	overdue, err := s.Repo.ListOverdueUnsent(ctx, now, s.Threshold)
	if err != nil {
		return fmt.Errorf("list overdue devices: %w", err)
	}
	if len(overdue) == 0 {
		return nil
	}

	// 按借用人分组
	groups := map[uint][]models.Device{}
	for _, d := range overdue {
		if d.UserID == nil {
			// 不变量被破坏才会走到这，记一笔就跳过
			logs.Logger.Warnf("overdue device %s has no borrower, skipping", d.Identifier)
			continue
		}
		groups[*d.UserID] = append(groups[*d.UserID], d)
	}

	// 固定遍历顺序，日志和测试都好看
	userIDs := make([]uint, 0, len(groups))
	for uid := range groups {
		userIDs = append(userIDs, uid)
	}
	sort.Slice(userIDs, func(i, j int) bool { return userIDs[i] < userIDs[j] })

	for _, uid := range userIDs {
		devices := groups[uid]
		user, err := s.Repo.FindUserByID(ctx, uid)
		if err != nil {
			logs.Logger.Warnf("no user found for overdue group (user id %d), skipping", uid)
			continue
		}

		recipient := mailer.RecipientAddress(user.Username, s.Domain)
		if err := s.Sink.Send(recipient, "Overdue Device Reminder", reminderBody(user.Username, devices)); err != nil {
			// 一组失败不挡后面的组；email_sent 不动，下轮重发
			logs.Logger.Errorf("send overdue reminder to %s: %v", recipient, err)
			continue
		}

		ids := make([]uint, 0, len(devices))
		for _, d := range devices {
			ids = append(ids, d.ID)
		}
		if err := s.Repo.MarkEmailSent(ctx, ids); err != nil {
			logs.Logger.Errorf("mark email_sent for user %s: %v", user.Username, err)
			continue
		}
		logs.Logger.Infof("sent overdue reminder to %s for %d device(s)", recipient, len(devices))
	}
	return nil
}

func reminderBody(username string, devices []models.Device) string {
	db.SortDevicesByIdentifier(devices)
	ids := make([]string, 0, len(devices))
	for _, d := range devices {
		ids = append(ids, d.Identifier)
	}
	return fmt.Sprintf(
		"Dear %s,\n\nYour borrowed device(s) (ID: %s) are now overdue. Please return them as soon as possible.\n\nThank you!",
		username, strings.Join(ids, ", "))
}

// Start 后台按固定间隔跑扫描，第一轮对齐到 startAt（已过则立即开始）。
// ctx 取消即退出。
func (s *Scanner) Start(ctx context.Context, interval time.Duration, startAt time.Time) {
	go func() {
		if wait := time.Until(startAt); wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return
			}
		}

		run := func() {
			if err := s.RunOnce(ctx); err != nil {
				logs.Logger.Errorf("overdue scan failed: %v", err)
			}
		}
		run()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				run()
			case <-ctx.Done():
				return
			}
		}
	}()
}
