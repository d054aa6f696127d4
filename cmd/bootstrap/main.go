// Package main 初始化 Milvus 集合并可选地导入分块文件
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"shakespeare-quote-api/internal/application/ingest"
	"shakespeare-quote-api/internal/config"
	"shakespeare-quote-api/internal/infrastructure/embedding"
	"shakespeare-quote-api/internal/infrastructure/persistence/milvus"
)

func main() {
	chunksPath := flag.String("chunks", "", "path to a JSON file of chunk records to ingest")
	flag.Parse()

	_ = godotenv.Load()

	fmt.Println("Starting system bootstrap...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()

	milvusClient, err := milvus.NewClient(ctx, &cfg.Vector.Milvus)
	if err != nil {
		log.Fatalf("failed to connect to milvus: %v", err)
	}
	defer milvusClient.Close()

	repo := milvus.NewRepository(milvusClient, cfg.Embedding.Dimension)
	if err := repo.EnsureFragmentsCollection(ctx); err != nil {
		log.Fatalf("failed to ensure fragments collection: %v", err)
	}
	fmt.Println("Fragments collection is ready.")

	if *chunksPath == "" {
		fmt.Println("Bootstrap completed successfully.")
		return
	}

	// 可选：导入分块器产出的片段文件
	data, err := os.ReadFile(*chunksPath)
	if err != nil {
		log.Fatalf("failed to read chunks file: %v", err)
	}

	var records []*ingest.ChunkRecord
	if err := json.Unmarshal(data, &records); err != nil {
		log.Fatalf("failed to parse chunks file: %v", err)
	}
	fmt.Printf("Ingesting %d fragments from %s...\n", len(records), *chunksPath)

	store := milvus.NewFragmentStoreAdapter(repo)
	embedder := embedding.NewClient(&cfg.Embedding)
	ingestor := ingest.NewIngestor(store, embedder, cfg.Embedding.BatchSize)

	count, err := ingestor.Ingest(ctx, records)
	if err != nil {
		log.Fatalf("failed to ingest fragments: %v", err)
	}
	fmt.Printf("Ingested %d fragments.\n", count)

	fmt.Println("Bootstrap completed successfully.")
}
