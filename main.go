package main

import (
	"context"
	"os"

	"device_loan_tool/app"
	"device_loan_tool/config"
	"device_loan_tool/db"
	"device_loan_tool/logs"
	"device_loan_tool/mailer"
	"device_loan_tool/routes"
	"device_loan_tool/scanner"
)

func main() {
	config.LoadEnv()
	application := app.MustNew()
	defer application.Close()

	logs.Init(logs.Options{
		Level:  application.Config.LogLevel,
		Format: application.Config.LogFormat,
	})

	r := application.Router

	// Health
	r.GET("/healthz", func(c *app.Ctx) { c.JSON(200, app.H{"ok": true}) })

	// 超期扫描：一天一轮，首轮对齐配置的锚点
	sink := mailer.NewSMTPMailer(mailer.SMTPConfig{
		Host:     application.Config.MailHost,
		Port:     application.Config.MailPort,
		Username: application.Config.MailUsername,
		Password: application.Config.MailPassword,
	})
	sc := scanner.New(db.NewRepo(application.DB), sink, application.Config.MailDomain)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sc.Start(ctx, application.Config.ScanInterval, application.Config.ScanStart)

	routes.RegisterRoutes(r, application, sc)

	port := os.Getenv("PORT")
	if port == "" {
		port = "3001"
	}
	logs.Logger.Infof("listening on :%s", port)
	_ = r.Run(":" + port)
}
