// Command oraclesim stands in for the threshold-decryption network during
// development. It generates oracle keys, seals order intents for clients and
// answers the auction's decryption requests over NATS.
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"SealedAuction/internal/event"
	"SealedAuction/internal/ingestion"
	"SealedAuction/internal/observability"
	"SealedAuction/internal/oracle"
	"SealedAuction/internal/sealed"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

func main() {
	_ = godotenv.Load()
	logger := observability.NewLogger("oraclesim")

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "keygen":
		err = keygen()
	case "seal":
		err = seal(os.Args[2:])
	case "serve":
		err = serve(logger)
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		logger.Fatal().Err(err).Str("command", os.Args[1]).Msg("oraclesim failed")
	}
}

func usage() {
	fmt.Println("Usage: oraclesim <keygen|seal|serve>")
	fmt.Println("  keygen                            - print a new oracle key pair (hex)")
	fmt.Println("  seal -pub KEY -price P -qty Q     - print a sealed payload (base64)")
	fmt.Println("  serve                             - answer decryption requests over NATS")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  SEALED_NATS_URL   - NATS server (serve)")
	fmt.Println("  SEALED_ORACLE_KEY - oracle private key, hex (serve)")
}

func keygen() error {
	kp, err := sealed.GenerateKeyPair(nil)
	if err != nil {
		return err
	}
	fmt.Println("public: ", sealed.EncodeKey(kp.Public))
	fmt.Println("private:", sealed.EncodeKey(kp.Private))
	return nil
}

func seal(args []string) error {
	fs := flag.NewFlagSet("seal", flag.ContinueOnError)
	pub := fs.String("pub", "", "oracle public key, hex")
	price := fs.Int64("price", 0, "limit price in fixed-point units")
	qty := fs.Int64("qty", 0, "quantity in base units")
	if err := fs.Parse(args); err != nil {
		return err
	}

	key, err := sealed.ParseKey(*pub)
	if err != nil {
		return fmt.Errorf("-pub: %w", err)
	}
	payload, err := sealed.Seal(key, *price, *qty)
	if err != nil {
		return err
	}
	fmt.Println(base64.StdEncoding.EncodeToString(payload))
	return nil
}

func serve(logger zerolog.Logger) error {
	hexKey := os.Getenv("SEALED_ORACLE_KEY")
	if hexKey == "" {
		return errors.New("SEALED_ORACLE_KEY is required")
	}
	priv, err := sealed.ParseKey(hexKey)
	if err != nil {
		return err
	}
	keys, err := sealed.KeyPairFromPrivate(priv)
	if err != nil {
		return err
	}

	url := os.Getenv("SEALED_NATS_URL")
	if url == "" {
		url = "nats://localhost:4222"
	}
	nc, js, err := ingestion.ConnectNATS(url, logger)
	if err != nil {
		return err
	}
	defer nc.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := ingestion.EnsureStreams(ctx, js, logger); err != nil {
		return err
	}

	consumer, err := js.CreateOrUpdateConsumer(ctx, ingestion.StreamOracle, jetstream.ConsumerConfig{
		Durable:       "oraclesim",
		FilterSubject: ingestion.SubjectOracleRequests,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
	})
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		if err := answer(ctx, js, keys, msg.Data()); err != nil {
			logger.Warn().Err(err).Msg("decryption request failed")
			msg.Nak()
			return
		}
		msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	defer cc.Stop()

	logger.Info().Str("public_key", sealed.EncodeKey(keys.Public)).Msg("oracle simulator serving")
	<-ctx.Done()
	return nil
}

// answer decrypts one request and publishes the batch. The round id is the
// message id, so a redelivered request yields one result inside the stream's
// duplicate window.
func answer(ctx context.Context, js jetstream.JetStream, keys *sealed.KeyPair, data []byte) error {
	var req event.DecryptionRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}

	out, err := json.Marshal(oracle.Decrypt(keys, &req))
	if err != nil {
		return err
	}
	msgID := fmt.Sprintf("result-%d", req.RoundID)
	_, err = js.Publish(ctx, ingestion.SubjectOracleResults, out, jetstream.WithMsgID(msgID))
	return err
}
