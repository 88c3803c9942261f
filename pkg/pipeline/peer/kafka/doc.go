// Package kafka provides the Kafka connector.
//
// As a source it joins a consumer group (config `groupId`) and hands every
// message of the subscribed topic to the pipeline handler. The offset of a
// message is marked only after the handler returns nil; a handler error ends
// the group session and the message is consumed again when the session is
// rejoined. Partitions are consumed concurrently, messages within a
// partition one after another.
//
// As a sink it publishes through a sarama SyncProducer with
// RequiredAcks=WaitForAll.
//
// Example peer config:
//
//	peers:
//	  - name: kafka
//	    connector: kafka
//	    config:
//	      brokers: ["localhost:9092"]
//	      groupId: catalogd
//	      topics: ["catalog"]
//	      sasl:
//	        enable: true
//	        algorithm: sha512
//	        username: catalogd
//	        password: secret
package kafka
