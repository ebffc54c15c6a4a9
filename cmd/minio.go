package cmd

import (
	"context"
	"fmt"
	"log"

	"soundsketch/config"
	"soundsketch/logger"
	"soundsketch/storage"

	"github.com/minio/minio-go/v7"
	"github.com/spf13/cobra"
)

var minioPrefix string

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "MinIO存储桶检查",
	Long:  `列出存储桶中的对象，用于核对音频版本与评论附件的存储布局。`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		logger.InitLogger(logger.Config{Level: logger.WarnLevel})
		fmt.Printf("MinIO配置: %s, Bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		client, err := storage.NewMinioClient(cfg)
		if err != nil {
			log.Fatalf("无法连接到MinIO: %v", err)
		}
		fmt.Println("MinIO连接成功！")

		ctx := context.Background()
		var count int
		var totalSize int64
		for object := range client.ListObjects(ctx, cfg.MinioBucket, minio.ListObjectsOptions{
			Prefix:    minioPrefix,
			Recursive: true,
		}) {
			if object.Err != nil {
				log.Fatalf("列出对象失败: %v", object.Err)
			}
			fmt.Printf("%12d  %s\n", object.Size, object.Key)
			count++
			totalSize += object.Size
		}
		fmt.Printf("共 %d 个对象, %d 字节\n", count, totalSize)
	},
}

func init() {
	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "", "对象键前缀过滤，如 tracks/ 或 attachments/")
	rootCmd.AddCommand(minioCmd)
}
