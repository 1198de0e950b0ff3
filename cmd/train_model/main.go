package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"sort"

	"bandersnatch/config"
	"bandersnatch/data"
	"bandersnatch/db"
	"bandersnatch/logging"
	"bandersnatch/ml"
	"bandersnatch/storage"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config")
	csvPath := flag.String("csv", "", "train from a CSV file instead of the document store")
	modelPath := flag.String("model_path", "", "model output path, defaults to model.path from the config")
	testRatio := flag.Float64("test_ratio", 0.2, "test ratio")
	splitSeed := flag.Int64("split_seed", 42, "seed for the train/test shuffle")
	estimators := flag.Int("estimators", 0, "number of trees, defaults to model.estimators from the config")
	maxDepth := flag.Int("max_depth", -1, "max tree depth, defaults to model.max_depth from the config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *modelPath != "" {
		cfg.Model.Path = *modelPath
	}
	if *estimators > 0 {
		cfg.Model.Estimators = *estimators
	}
	if *maxDepth >= 0 {
		cfg.Model.MaxDepth = *maxDepth
	}

	logger, closeLogger, err := logging.New(logging.Options{Level: cfg.Log.Level})
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer closeLogger()

	table, database, err := loadTable(cfg, *csvPath, logger)
	if err != nil {
		log.Fatalf("failed to load training data: %v", err)
	}
	if database != nil {
		defer database.Close()
	}

	training, err := ml.TrainingTable(table)
	if err != nil {
		log.Fatalf("failed to build training table: %v", err)
	}
	train, test := training.Split(*testRatio, *splitSeed)

	machine, err := ml.FromTrainingData(train,
		ml.WithLogger(logger),
		ml.WithForestOptions(
			ml.WithEstimators(cfg.Model.Estimators),
			ml.WithMaxDepth(cfg.Model.MaxDepth),
			ml.WithRandomState(cfg.Model.Seed),
		),
	)
	if err != nil {
		log.Fatalf("failed to train model: %v", err)
	}

	metrics, err := ml.Evaluate(machine, test)
	if err != nil {
		log.Fatalf("failed to evaluate model: %v", err)
	}
	printMetrics(metrics)

	var store storage.BlobStore = storage.NewFileStore("")
	if cfg.Model.Store == "sqlite" {
		sqliteStore, err := storage.NewSQLiteStore(cfg.Model.SQLitePath)
		if err != nil {
			log.Fatalf("failed to open model store: %v", err)
		}
		defer sqliteStore.Close()
		store = sqliteStore
	}
	if err := machine.Save(store, cfg.Model.Path); err != nil {
		log.Fatalf("failed to save model: %v", err)
	}
	if database != nil {
		accuracy := metrics.Accuracy
		err := database.SaveTrainingLog(db.TrainingLog{
			ModelName:  machine.Name(),
			Accuracy:   &accuracy,
			TrainedAt:  machine.CreatedAt(),
			DataPoints: train.Len(),
		})
		if err != nil {
			logger.Warn("failed to record training", zap.Error(err))
		}
	}

	fmt.Println(machine.Info())
	fmt.Printf("model saved to %s\n", cfg.Model.Path)
}

// loadTable reads the CSV file when given, otherwise the configured
// collection, seeding it first when it is empty.
func loadTable(cfg *config.Config, csvPath string, logger *zap.Logger) (*data.Table, *db.Database, error) {
	if csvPath != "" {
		file, err := os.Open(csvPath)
		if err != nil {
			return nil, nil, err
		}
		defer file.Close()
		table, err := data.ReadCSV(file)
		return table, nil, err
	}

	database, err := db.Open(cfg.Database.Path, cfg.Database.Collection, logger)
	if err != nil {
		return nil, nil, err
	}
	count, err := database.Count()
	if err != nil {
		database.Close()
		return nil, nil, err
	}
	if count == 0 && cfg.Database.SeedSize > 0 {
		if err := database.Seed(cfg.Database.SeedSize); err != nil {
			database.Close()
			return nil, nil, err
		}
	}
	table, err := database.Table()
	if err != nil {
		database.Close()
		return nil, nil, err
	}
	return table, database, nil
}

func printMetrics(metrics ml.Metrics) {
	fmt.Printf("accuracy=%.3f samples=%d\n", metrics.Accuracy, metrics.Samples)
	labels := make([]string, 0, len(metrics.Classes))
	for label := range metrics.Classes {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		class := metrics.Classes[label]
		fmt.Printf("  %-10s precision=%.3f recall=%.3f support=%d\n", label, class.Precision, class.Recall, class.Support)
	}
}
