// Package notify delivers strategy notifications.
//
// Router implements automation.Notifier and picks a channel from the
// recipient kind: email through an SMTP relay, or a platform message stored
// in SQLite and pushed to the recipient's MQTT topic.
//
//	router := notify.NewRouter(notify.NewEmailSender(cfg.Notification.SMTP),
//	    notify.NewMessageStore(db.DB), log)
//	router.SetPublisher(mqttClient, cfg.Notification.PlatformTopicPrefix)
package notify
