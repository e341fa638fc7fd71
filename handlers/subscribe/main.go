package main

import (
	"context"
	"log"
	"os"
	"signup/handlers/subscribe/internal/handler"
	"signup/handlers/subscribe/internal/store"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

func main() {
	cfg, err := config.LoadDefaultConfig(context.TODO())
	if err != nil {
		log.Fatalln("configuration error: " + err.Error())
	}

	tableName := os.Getenv("EMAILS_TABLE_NAME")
	if tableName == "" {
		log.Fatalln("configuration error: EMAILS_TABLE_NAME is not set")
	}

	ddbClient := dynamodb.NewFromConfig(cfg)

	h := handler.New(store.New(ddbClient, tableName))

	lambda.Start(h.Subscribe)
}
