// Package config loads the bridge settings from the environment.
//
// A .env file is read first when present; variables already set in the
// environment win. Required: KAFKA_TOPIC, KAFKA_PARTITION, PUBNUB_CHANNEL,
// PUBNUB_PUBLISH_KEY, PUBNUB_SUBSCRIBE_KEY and either KAFKA_BROKERS or
// RABBITMQ_URL depending on BROKER_DRIVER.
package config
