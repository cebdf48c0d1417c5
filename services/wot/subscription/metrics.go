// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package subscription

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	activeSubscriptions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "wot_subscriptions_active",
		Help: "Live subscriptions by stream",
	}, []string{"stream"})

	notificationsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wot_subscription_notifications_enqueued_total",
		Help: "Notifications appended to delivery queues",
	}, []string{"stream"})

	notificationsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wot_subscription_notifications_delivered_total",
		Help: "Notifications acknowledged by clients",
	}, []string{"stream"})

	notificationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wot_subscription_notifications_failed_total",
		Help: "Failed notification delivery attempts",
	}, []string{"stream"})

	terminationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wot_subscription_terminations_total",
		Help: "Subscriptions force-terminated after repeated delivery failures",
	}, []string{"stream"})
)
