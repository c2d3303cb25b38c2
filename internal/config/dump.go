package config

import (
	"k8s.io/klog/v2"
)

// Dump logs the effective configuration
func (c *Config) Dump() {
	if c.ListenAddress != nil {
		klog.InfoS("Listen address", "address", c.ListenAddress.String())
	} else {
		klog.InfoS("Listen address", "address", "unset")
	}
	klog.InfoS("MQTT broker", "url", c.MQTT.BrokerURL(), "keepalive", c.MQTT.Keepalive,
		"topicPrefix", c.MQTT.TopicPrefix, "qos", c.MQTT.QoS, "retain", c.MQTT.Retain)
	klog.InfoS("Publisher workers", "count", c.Workers, "maskSignals", c.MaskSignals)
	klog.InfoS("Radio source", "source", c.Source, "device", c.Device)
	for addr, name := range c.Sensors {
		klog.V(1).InfoS("Sensor mapping", "address", addr.String(), "name", name)
	}
	klog.V(1).InfoS("Retry policy", "maxAttempts", c.Retry.MaxAttempts,
		"initialDelay", c.Retry.InitialDelay, "maxDelay", c.Retry.MaxDelay)
	klog.V(1).InfoS("Stats", "interval", c.StatsInterval, "metricsListen", c.MetricsListen)
}
